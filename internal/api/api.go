// Package api exposes the HTTP surface: log ingestion and incident
// lifecycle endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/klaxon/internal/incident"
	"github.com/linnemanlabs/klaxon/internal/logrec"
	"github.com/linnemanlabs/klaxon/internal/process"
)

// Pipeline defines the ingestion operation the API needs.
type Pipeline interface {
	Process(ctx context.Context, records []logrec.Record) (*process.Summary, error)
}

// IncidentService defines the incident operations the API needs.
type IncidentService interface {
	Get(ctx context.Context, id string) (*incident.Incident, bool, error)
	ListActive(ctx context.Context) ([]*incident.Incident, error)
	ListEscalating(ctx context.Context) ([]*incident.Incident, error)
	Transition(ctx context.Context, id string, to incident.Status, note string) (*incident.Incident, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	pipeline  Pipeline
	incidents IncidentService
}

// New creates a new API handler.
func New(logger log.Logger, pipeline Pipeline, incidents IncidentService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if pipeline == nil {
		panic(xerrors.New("pipeline is required"))
	}
	return &API{
		logger:    logger,
		pipeline:  pipeline,
		incidents: incidents,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/logs", a.handleIngestLogs)
		r.Get("/incidents", a.handleListIncidents)
		r.Get("/incidents/{id}", a.handleGetIncident)
		r.Post("/incidents/{id}/transitions", a.handleTransition)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
