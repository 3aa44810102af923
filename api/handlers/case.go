package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/cases"
	"github.com/linesmerrill/sos-dispatch-api/dispatch"
	"github.com/linesmerrill/sos-dispatch-api/geo"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// Case exported for testing purposes
type Case struct {
	Service    *cases.Service
	Engine     *dispatch.Engine
	Hub        Publisher
	AutoAssign bool
}

// CreateCaseRequest is the body of an SOS raised by a citizen
type CreateCaseRequest struct {
	Position    geo.Point `json:"position"`
	AccuracyM   *float64  `json:"accuracyM,omitempty"`
	Description string    `json:"description"`
}

// CreateCaseResponse carries the stored case and, when auto-assignment ran,
// its result
type CreateCaseResponse struct {
	Case       *models.Case           `json:"case"`
	Assignment *dispatch.AssignResult `json:"assignment,omitempty"`
}

// UpdateStatusRequest moves a case to Status
type UpdateStatusRequest struct {
	Status models.CaseStatus `json:"status"`
	Notes  string            `json:"notes,omitempty"`
}

// ReassignRequest names the officer a case moves to
type ReassignRequest struct {
	OfficerID string `json:"officerId"`
}

// CaseResponse is a case together with the status log row that moved it
type CaseResponse struct {
	Case *models.Case           `json:"case"`
	Log  *models.StatusLogEntry `json:"log,omitempty"`
}

// CreateCaseHandler stores a new SOS and, when enabled, assigns the nearest
// available officer
func (c Case) CreateCaseHandler(w http.ResponseWriter, r *http.Request) {
	var body CreateCaseRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, "failed to decode case", err)
		return
	}
	caller := actor(r)

	sos, entry, err := c.Service.Create(r.Context(), cases.NewCase{
		ReporterID:  caller.ID,
		Position:    body.Position,
		AccuracyM:   body.AccuracyM,
		Description: body.Description,
	})
	if err != nil {
		writeError(w, "failed to create case", err)
		return
	}
	c.Hub.Publish(*entry)

	resp := CreateCaseResponse{Case: sos}
	if c.AutoAssign {
		res, err := c.Engine.AutoAssign(r.Context(), sos.ID, sos.Position)
		if err != nil {
			// the case is stored, the retry job picks it up
			zap.S().Errorw("auto-assignment failed", "caseId", sos.ID, "error", err)
		} else {
			resp.Assignment = &res
			if res.Log != nil {
				c.Hub.Publish(*res.Log)
				sos.Status = res.Log.ToStatus
				sos.OfficerID = res.OfficerID
			}
		}
	}

	writeResponse(w, http.StatusCreated, resp)
}

// CasesHandler lists cases with optional status, officerId, reporterId,
// unassigned, oldestFirst, page and limit query parameters
func (c Case) CasesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.CaseFilter{
		Status:     models.CaseStatus(q.Get("status")),
		OfficerID:  q.Get("officerId"),
		ReporterID: q.Get("reporterId"),
	}

	var err error
	if f.Page, err = intParam(q.Get("page"), 1); err != nil {
		writeError(w, "invalid page", err)
		return
	}
	if f.Limit, err = intParam(q.Get("limit"), cases.DefaultListLimit); err != nil {
		writeError(w, "invalid limit", err)
		return
	}
	if f.Unassigned, err = boolParam(q.Get("unassigned")); err != nil {
		writeError(w, "invalid unassigned", err)
		return
	}
	if f.OldestFirst, err = boolParam(q.Get("oldestFirst")); err != nil {
		writeError(w, "invalid oldestFirst", err)
		return
	}

	list, err := c.Service.List(r.Context(), f)
	if err != nil {
		writeError(w, "failed to get cases", err)
		return
	}
	writeResponse(w, http.StatusOK, list)
}

// CaseByIDHandler returns a case to its reporter, its officer or an admin
func (c Case) CaseByIDHandler(w http.ResponseWriter, r *http.Request) {
	sos, err := c.Service.Get(r.Context(), mux.Vars(r)["case_id"], actor(r))
	if err != nil {
		writeError(w, "failed to get case by ID", err)
		return
	}
	writeResponse(w, http.StatusOK, sos)
}

// CaseHistoryHandler returns the status log of a case, oldest first
func (c Case) CaseHistoryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := c.Service.History(r.Context(), mux.Vars(r)["case_id"], actor(r))
	if err != nil {
		writeError(w, "failed to get case history", err)
		return
	}
	writeResponse(w, http.StatusOK, entries)
}

// UpdateCaseStatusHandler moves a case one step along its lifecycle
func (c Case) UpdateCaseStatusHandler(w http.ResponseWriter, r *http.Request) {
	var body UpdateStatusRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, "failed to decode status", err)
		return
	}

	sos, entry, err := c.Service.UpdateStatus(r.Context(), mux.Vars(r)["case_id"], body.Status, body.Notes, actor(r))
	if err != nil {
		writeError(w, "failed to update case status", err)
		return
	}
	c.Hub.Publish(*entry)
	writeResponse(w, http.StatusOK, CaseResponse{Case: sos, Log: entry})
}

// AutoAssignCaseHandler runs the assignment engine for an existing case
func (c Case) AutoAssignCaseHandler(w http.ResponseWriter, r *http.Request) {
	sos, err := c.Service.Get(r.Context(), mux.Vars(r)["case_id"], actor(r))
	if err != nil {
		writeError(w, "failed to get case by ID", err)
		return
	}

	res, err := c.Engine.AutoAssign(r.Context(), sos.ID, sos.Position)
	if err != nil {
		writeError(w, "failed to assign case", err)
		return
	}
	if res.Log != nil {
		c.Hub.Publish(*res.Log)
	}
	writeResponse(w, http.StatusOK, res)
}

// ReassignCaseHandler moves a case to another officer
func (c Case) ReassignCaseHandler(w http.ResponseWriter, r *http.Request) {
	var body ReassignRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, "failed to decode officer", err)
		return
	}

	res, err := c.Engine.Reassign(r.Context(), mux.Vars(r)["case_id"], body.OfficerID, actor(r).ID)
	if err != nil {
		writeError(w, "failed to reassign case", err)
		return
	}
	c.Hub.Publish(res.Log)
	writeResponse(w, http.StatusOK, res)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(raw, err)
	}
	return v, nil
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(raw, err)
	}
	return v, nil
}

func floatParam(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalidParam(raw, err)
	}
	return v, nil
}
