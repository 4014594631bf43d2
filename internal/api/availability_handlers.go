package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/scheduling/internal/availability"
	"github.com/careloop/scheduling/internal/directory"
)

const (
	defaultNextAvailableDays = 30
	defaultSummaryDays       = 7
	maxSummaryDays           = 31
)

func listProvidersHandler(dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := dir.ListBookable(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ProviderResponse, 0, len(providers))
		for _, p := range providers {
			resp = append(resp, ProviderResponse{
				ID:             p.ID,
				Name:           p.Name,
				Specialization: p.Specialization,
				IsVerified:     p.IsVerified,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getSlotsHandler(scanner *availability.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		date, err := availability.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := scanner.Slots(r.Context(), providerID, date, time.Now())
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			ProviderID: providerID,
			Date:       date,
			Slots:      slots,
		})
	}
}

func nextAvailableHandler(scanner *availability.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		days := defaultNextAvailableDays
		if v := r.URL.Query().Get("days"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be a non-negative integer")
				return
			}
			days = parsed
		}
		duration := 0
		if v := r.URL.Query().Get("duration"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a non-negative integer")
				return
			}
			duration = parsed
		}

		slot, err := scanner.NextAvailable(r.Context(), providerID, days, duration, time.Now())
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, NextAvailableResponse{
			ProviderID: providerID,
			Slot:       slot,
		})
	}
}

func summaryHandler(scanner *availability.Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		days := defaultSummaryDays
		if v := r.URL.Query().Get("days"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 || parsed > maxSummaryDays {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be between 1 and 31")
				return
			}
			days = parsed
		}

		summaries, err := scanner.Summary(r.Context(), providerID, days, time.Now())
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SummaryResponse{
			ProviderID: providerID,
			Days:       summaries,
		})
	}
}

func putProfileHandler(store availability.ProfileStore, dir directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		if _, err := dir.GetByID(r.Context(), providerID); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		var req ProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		profile, err := req.toProfile(providerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_profile", err.Error())
			return
		}
		if err := profile.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_profile", err.Error())
			return
		}

		if err := store.Put(r.Context(), profile); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func putCustomSlotsHandler(store availability.ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, date, ok := parseOverrideParams(w, r)
		if !ok {
			return
		}

		var req CustomSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		for _, slot := range req.Slots {
			if !validInterval(slot.Start, slot.End) {
				writeError(w, http.StatusBadRequest, "invalid_slot", "slot start must be before end")
				return
			}
		}

		if err := store.PutCustomSlots(r.Context(), providerID, date, req.Slots); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, req.Slots)
	}
}

func deleteCustomSlotsHandler(store availability.ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, date, ok := parseOverrideParams(w, r)
		if !ok {
			return
		}

		if err := store.DeleteCustomSlots(r.Context(), providerID, date); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func putBlockedSlotsHandler(store availability.ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, date, ok := parseOverrideParams(w, r)
		if !ok {
			return
		}

		var req BlockedSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		for _, slot := range req.Slots {
			if !validInterval(slot.Start, slot.End) {
				writeError(w, http.StatusBadRequest, "invalid_slot", "slot start must be before end")
				return
			}
		}

		if err := store.PutBlockedSlots(r.Context(), providerID, date, req.Slots); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, req.Slots)
	}
}

func deleteBlockedSlotsHandler(store availability.ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, date, ok := parseOverrideParams(w, r)
		if !ok {
			return
		}

		if err := store.DeleteBlockedSlots(r.Context(), providerID, date); err != nil {
			handleAvailabilityError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseOverrideParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, availability.Date, bool) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return id, availability.Date{}, false
	}

	date, err := availability.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return id, availability.Date{}, false
	}

	return id, date, true
}

func validInterval(start, end availability.TimeOfDay) bool {
	return start.Valid() && end.Valid() && start < end
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, directory.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidBuffer),
		errors.Is(err, availability.ErrInvalidHorizon),
		errors.Is(err, availability.ErrInvalidTimezone):
		writeError(w, http.StatusBadRequest, "invalid_profile", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
