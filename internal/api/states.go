package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakmere/fleetstate/internal/state"
)

// handleCreateState creates a new state record.
//
// POST /api/v1/states
func (s *Server) handleCreateState(w http.ResponseWriter, r *http.Request) {
	var req state.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	st, err := s.manager.CreateState(r.Context(), req)
	if err != nil {
		writeStateError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, st)
}

// handleGetState returns a single state record by ID.
//
// GET /api/v1/states/{id}
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := s.manager.GetState(r.Context(), id)
	if err != nil {
		writeStateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// handleListStates lists records addressed by internal identifiers.
//
// GET /api/v1/states?device={deviceID} returns all records for a device.
// GET /api/v1/states?assignment={assignmentID} returns the assignment's record.
func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	assignmentID := r.URL.Query().Get("assignment")

	switch {
	case assignmentID != "":
		st, err := s.manager.GetStateByAssignment(r.Context(), assignmentID)
		if err != nil {
			writeStateError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []state.DeviceState{*st})

	case deviceID != "":
		states, err := s.manager.ListStatesByDevice(r.Context(), deviceID)
		if err != nil {
			writeStateError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, states)

	default:
		writeBadRequest(w, "device or assignment query parameter is required")
	}
}

// handleUpdateState applies identity and timestamp overrides to a record.
//
// PATCH /api/v1/states/{id}
func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req state.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	st, err := s.manager.UpdateState(r.Context(), id, req)
	if err != nil {
		writeStateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// handleDeleteState removes a state record.
//
// DELETE /api/v1/states/{id}
func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.manager.DeleteState(r.Context(), id); err != nil {
		writeStateError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMergeState folds an event batch into a record.
//
// POST /api/v1/states/{id}/merge
func (s *Server) handleMergeState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req state.EventMergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	st, err := s.manager.MergeState(r.Context(), id, &req)
	if err != nil {
		writeStateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// handleSearchStates runs a token-addressed, paged search.
//
// POST /api/v1/states/search
func (s *Server) handleSearchStates(w http.ResponseWriter, r *http.Request) {
	var criteria state.SearchCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	results, err := s.manager.SearchStates(r.Context(), criteria)
	if err != nil {
		writeStateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}
