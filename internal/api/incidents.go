package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/klaxon/internal/incident"
)

// incidentView decorates an incident with its derived SLA predicates, which
// are computed per read and never stored.
type incidentView struct {
	*incident.Incident
	SLAViolated       bool `json:"sla_violated"`
	NearingEscalation bool `json:"nearing_escalation"`
}

func viewOf(inc *incident.Incident, now time.Time) incidentView {
	return incidentView{
		Incident:          inc,
		SLAViolated:       inc.SLAViolated(now),
		NearingEscalation: inc.NearingEscalation(now),
	}
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	if a.incidents == nil {
		http.Error(w, `{"error":"incident tracking disabled"}`, http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("klaxon.incident.id", id))

	inc, ok, err := a.incidents.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("klaxon.incident.status", string(inc.Status)))
	writeJSON(w, http.StatusOK, viewOf(inc, time.Now().UTC()))
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	if a.incidents == nil {
		http.Error(w, `{"error":"incident tracking disabled"}`, http.StatusNotImplemented)
		return
	}

	var (
		incs []*incident.Incident
		err  error
	)
	if r.URL.Query().Get("escalating") == "true" {
		incs, err = a.incidents.ListEscalating(r.Context())
	} else {
		incs, err = a.incidents.ListActive(r.Context())
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	now := time.Now().UTC()
	views := make([]incidentView, 0, len(incs))
	for _, inc := range incs {
		views = append(views, viewOf(inc, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": views})
}

type transitionRequest struct {
	To   incident.Status `json:"to"`
	Note string          `json:"note,omitempty"`
}

func (a *API) handleTransition(w http.ResponseWriter, r *http.Request) {
	if a.incidents == nil {
		http.Error(w, `{"error":"incident tracking disabled"}`, http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "id")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	inc, err := a.incidents.Transition(r.Context(), id, req.To, req.Note)
	if err != nil {
		var bad *incident.ErrBadTransition
		switch {
		case errors.Is(err, incident.ErrNotFound):
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		case errors.As(err, &bad):
			http.Error(w, `{"error":"`+bad.Error()+`"}`, http.StatusConflict)
		default:
			a.logger.Error(r.Context(), err, "transition failed", "id", id, "to", string(req.To))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, inc)
}
