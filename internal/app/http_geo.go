package app

import (
	"net/http"
	"strconv"

	"madcrm/api/internal/sanitize"
	"madcrm/api/internal/store"
)

func (s *HTTPServer) handleStateList(w http.ResponseWriter, r *http.Request) {
	states, err := s.service.ListStates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "List of Indian states and union territories.",
		"states":  states,
	})
}

func (s *HTTPServer) handleStateCreate(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.SeedStates(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	states := make([]map[string]string, 0, len(names))
	for _, name := range names {
		states = append(states, map[string]string{"state_name": name})
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Indian states added successfully.",
		"states":  states,
	})
}

func (s *HTTPServer) handleCityList(w http.ResponseWriter, r *http.Request) {
	stateID, err := strconv.ParseInt(r.URL.Query().Get("stateId"), 10, 64)
	if err != nil || stateID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid state ID", nil)
		return
	}
	cities, err := s.service.ListCities(r.Context(), stateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cities": cities})
}

func (s *HTTPServer) handleCityCreate(w http.ResponseWriter, r *http.Request) {
	var body createCitiesRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	cities := make([]store.City, 0, len(body.Cities))
	for _, c := range body.Cities {
		cities = append(cities, store.City{CityName: sanitize.Text(c.CityName), StateID: int64(c.StateID)})
	}
	inserted, err := s.service.CreateCities(r.Context(), actorFrom(r.Context()), cities)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Cities added successfully",
		"cities":  inserted,
	})
}
