package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/appointment"
	"github.com/careloop/scheduling/internal/availability"
)

type CreateAppointmentRequest struct {
	ProviderID      string  `json:"provider_id,omitempty"`
	PatientID       string  `json:"patient_id"`
	BookedByID      string  `json:"booked_by_id,omitempty"`
	Issue           string  `json:"issue"`
	Priority        string  `json:"priority,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	PreferredDate   *string `json:"preferred_date,omitempty"`
	AppointmentDate *string `json:"appointment_date,omitempty"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
}

type ClaimAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
}

type UpdateStatusRequest struct {
	ProviderID string `json:"provider_id"`
	Status     string `json:"status"`
}

type UpdateNotesRequest struct {
	ProviderID string `json:"provider_id"`
	Notes      string `json:"notes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	PatientID       uuid.UUID  `json:"patient_id"`
	BookedByID      uuid.UUID  `json:"booked_by_id"`
	Issue           string     `json:"issue"`
	Priority        string     `json:"priority"`
	Notes           *string    `json:"notes,omitempty"`
	ProviderNotes   *string    `json:"provider_notes,omitempty"`
	PreferredDate   *time.Time `json:"preferred_date,omitempty"`
	AppointmentDate *time.Time `json:"appointment_date,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		BookedByID:      a.BookedByID,
		Issue:           a.Issue,
		Priority:        string(a.Priority),
		Notes:           a.Notes,
		ProviderNotes:   a.ProviderNotes,
		PreferredDate:   a.PreferredDate,
		AppointmentDate: a.AppointmentDate,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type ProviderResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization *string   `json:"specialization,omitempty"`
	IsVerified     bool      `json:"is_verified"`
}

// ProfileRequest is the whole-profile upsert payload. Weekly hours are keyed
// by lowercase day name rather than time.Weekday's numeric form.
type ProfileRequest struct {
	WeeklyHours         map[string]availability.DayHours `json:"weekly_hours"`
	BreakTimes          []availability.BreakTime         `json:"break_times,omitempty"`
	SlotDurationMinutes int                              `json:"slot_duration_minutes"`
	BufferMinutes       int                              `json:"buffer_minutes,omitempty"`
	AdvanceBookingDays  int                              `json:"advance_booking_days"`
	Timezone            string                           `json:"timezone"`
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (r ProfileRequest) toProfile(providerID uuid.UUID) (*availability.Profile, error) {
	hours := make(map[time.Weekday]availability.DayHours, len(r.WeeklyHours))
	for name, day := range r.WeeklyHours {
		weekday, ok := dayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		hours[weekday] = day
	}

	return &availability.Profile{
		ProviderID:          providerID,
		WeeklyHours:         hours,
		BreakTimes:          r.BreakTimes,
		SlotDurationMinutes: r.SlotDurationMinutes,
		BufferMinutes:       r.BufferMinutes,
		AdvanceBookingDays:  r.AdvanceBookingDays,
		Timezone:            r.Timezone,
	}, nil
}

type CustomSlotsRequest struct {
	Slots []availability.CustomSlot `json:"slots"`
}

type BlockedSlotsRequest struct {
	Slots []availability.BlockedSlot `json:"slots"`
}

type SlotsResponse struct {
	ProviderID uuid.UUID           `json:"provider_id"`
	Date       availability.Date   `json:"date"`
	Slots      []availability.Slot `json:"slots"`
}

type NextAvailableResponse struct {
	ProviderID uuid.UUID          `json:"provider_id"`
	Slot       *availability.Slot `json:"slot"`
}

type SummaryResponse struct {
	ProviderID uuid.UUID                 `json:"provider_id"`
	Days       []availability.DaySummary `json:"days"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
