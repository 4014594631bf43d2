package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/appointment"
	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/directory"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		draft := appointment.Draft{
			PatientID:       patientID,
			Issue:           req.Issue,
			Priority:        appointment.Priority(req.Priority),
			Notes:           req.Notes,
			DurationMinutes: req.DurationMinutes,
		}

		if req.ProviderID != "" {
			providerID, err := uuid.Parse(req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			draft.ProviderID = &providerID
		}
		if req.BookedByID != "" {
			bookedByID, err := uuid.Parse(req.BookedByID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_booked_by_id", "booked_by_id must be a valid UUID")
				return
			}
			draft.BookedByID = bookedByID
		}
		if req.PreferredDate != nil {
			at, err := time.Parse(time.RFC3339, *req.PreferredDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_preferred_date", "preferred_date must be RFC 3339")
				return
			}
			draft.PreferredDate = &at
		}
		if req.AppointmentDate != nil {
			at, err := time.Parse(time.RFC3339, *req.AppointmentDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be RFC 3339")
				return
			}
			draft.AppointmentDate = &at
		}

		created, err := svc.Create(r.Context(), draft)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(created))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listUnassignedHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := parsePagination(r)

		appts, err := svc.ListUnassigned(r.Context(), limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listByPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		limit, offset := parsePagination(r)

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func claimAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req ClaimAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		claimed, err := svc.Claim(r.Context(), id, providerID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(claimed))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		updated, err := svc.UpdateStatus(r.Context(), id, appointment.Status(req.Status), providerID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
	}
}

func updateNotesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateNotesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		updated, err := svc.UpdateProviderNotes(r.Context(), id, providerID, req.Notes)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(updated))
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrEmptyIssue),
		errors.Is(err, appointment.ErrMissingPatient),
		errors.Is(err, appointment.ErrInvalidPriority),
		errors.Is(err, appointment.ErrInvalidStatus),
		errors.Is(err, appointment.ErrMissingAppointmentDate):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrNotOwner),
		errors.Is(err, appointment.ErrProviderNotBookable):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, directory.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, availability.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, appointment.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "already_claimed", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, appointment.ErrStaleStatus),
		errors.Is(err, appointment.ErrNotesLocked):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrSlotNoLongerAvailable):
		writeError(w, http.StatusConflict, "slot_no_longer_available", err.Error())
	case errors.Is(err, appointment.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
