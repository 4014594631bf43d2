package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "provider_id", "patient_id", "booked_by_id", "issue", "priority",
	"notes", "provider_notes", "preferred_date", "appointment_date",
	"duration_minutes", "status", "created_at", "updated_at",
}

func appointmentRow(id uuid.UUID, providerID *uuid.UUID, status Status) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(appointmentCols).AddRow(
		id, providerID, uuid.New(), uuid.New(), "back pain", PriorityNormal,
		(*string)(nil), (*string)(nil), (*time.Time)(nil), (*time.Time)(nil),
		30, status, now, now,
	)
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func TestPgClaimWins(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	providerID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, providerID).
		WillReturnRows(appointmentRow(id, &providerID, StatusPending))

	claimed, err := repo.Claim(context.Background(), id, providerID)
	require.NoError(t, err)
	require.Equal(t, providerID, *claimed.ProviderID)
	require.Equal(t, StatusPending, claimed.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgClaimLosesToEarlierClaim(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	loser := uuid.New()
	winner := uuid.New()

	// The conditional UPDATE matches no row, so the repository re-reads to
	// tell a lost race apart from a missing appointment.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, loser).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnRows(appointmentRow(id, &winner, StatusPending))

	_, err := repo.Claim(context.Background(), id, loser)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgClaimSweptAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	providerID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, providerID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnRows(appointmentRow(id, nil, StatusCancelled))

	_, err := repo.Claim(context.Background(), id, providerID)
	require.ErrorIs(t, err, ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgClaimMissingAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	providerID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, providerID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Claim(context.Background(), id, providerID)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateStatusConditional(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	providerID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusConfirmed, StatusPending).
		WillReturnRows(appointmentRow(id, &providerID, StatusConfirmed))

	updated, err := repo.UpdateStatus(context.Background(), id, StatusPending, StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateStatusStale(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusConfirmed, StatusPending).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateStatus(context.Background(), id, StatusPending, StatusConfirmed)
	require.ErrorIs(t, err, ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancelUnassigned(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id).
		WillReturnRows(appointmentRow(id, nil, StatusCancelled))

	cancelled, err := repo.CancelUnassigned(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancelUnassignedClaimedMeanwhile(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()

	// The record gained a provider between the stale scan and this write, so
	// the conditional UPDATE matches nothing.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.CancelUnassigned(context.Background(), id)
	require.ErrorIs(t, err, ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateProviderNotesTerminalStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	providerID := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "late note").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnRows(appointmentRow(id, &providerID, StatusCompleted))

	_, err := repo.UpdateProviderNotes(context.Background(), id, "late note")
	require.ErrorIs(t, err, ErrStaleStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListBookedBetween(t *testing.T) {
	repo, mock := newMockRepo(t)

	providerID := uuid.New()
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT appointment_date, duration_minutes").
		WithArgs(providerID, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"appointment_date", "duration_minutes"}).
			AddRow(start, 30).
			AddRow(start.Add(time.Hour), 45))

	booked, err := repo.ListBookedBetween(context.Background(), providerID, from, to)
	require.NoError(t, err)
	require.Len(t, booked, 2)
	require.Equal(t, start, booked[0].Start)
	require.Equal(t, start.Add(30*time.Minute), booked[0].End)
	require.Equal(t, start.Add(time.Hour+45*time.Minute), booked[1].End)
	require.NoError(t, mock.ExpectationsWereMet())
}
