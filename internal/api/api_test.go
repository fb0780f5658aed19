package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/klaxon/internal/api"
	"github.com/linnemanlabs/klaxon/internal/classify"
	"github.com/linnemanlabs/klaxon/internal/incident"
	"github.com/linnemanlabs/klaxon/internal/logrec"
	"github.com/linnemanlabs/klaxon/internal/policy"
	"github.com/linnemanlabs/klaxon/internal/process"
)

type fakePipeline struct {
	gotRecords []logrec.Record
	summary    *process.Summary
	err        error
}

func (f *fakePipeline) Process(_ context.Context, records []logrec.Record) (*process.Summary, error) {
	f.gotRecords = records
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		return f.summary, nil
	}
	events := make([]process.Event, len(records))
	for i, rec := range records {
		events[i] = process.Event{
			Result: classify.Result{
				Record:     rec,
				Category:   classify.SystemNotification,
				Confidence: 1.0,
				Stage:      classify.StagePattern,
			},
			Severity:    6,
			ProcessedAt: time.Now().UTC(),
		}
	}
	return &process.Summary{Events: events, Stats: &policy.Stats{Total: len(records)}}, nil
}

type fakeIncidents struct {
	byID       map[string]*incident.Incident
	escalating []*incident.Incident
	transErr   error
}

func (f *fakeIncidents) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	inc, ok := f.byID[id]
	return inc, ok, nil
}

func (f *fakeIncidents) ListActive(_ context.Context) ([]*incident.Incident, error) {
	var out []*incident.Incident
	for _, inc := range f.byID {
		if inc.Status.Active() {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (f *fakeIncidents) ListEscalating(_ context.Context) ([]*incident.Incident, error) {
	return f.escalating, nil
}

func (f *fakeIncidents) Transition(_ context.Context, id string, to incident.Status, _ string) (*incident.Incident, error) {
	if f.transErr != nil {
		return nil, f.transErr
	}
	inc, ok := f.byID[id]
	if !ok {
		return nil, incident.ErrNotFound
	}
	if !inc.Status.CanTransition(to) {
		return nil, &incident.ErrBadTransition{From: inc.Status, To: to}
	}
	inc.Status = to
	return inc, nil
}

func newRouter(pipeline api.Pipeline, incidents api.IncidentService) http.Handler {
	r := chi.NewRouter()
	api.New(nil, pipeline, incidents).RegisterRoutes(r)
	return r
}

func sampleIncident(id string, status incident.Status) *incident.Incident {
	now := time.Now().UTC()
	return &incident.Incident{
		ID:        id,
		Key:       "k-" + id,
		Category:  "Security Alert",
		Source:    "auth",
		Severity:  9,
		Priority:  incident.PriorityHighest,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
		DueAt:     now.Add(time.Hour),
	}
}

func TestIngestLogs(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{}
	router := newRouter(pipeline, &fakeIncidents{byID: map[string]*incident.Incident{}})

	body := `{"logs":[
		{"source":"auth-svc","message":"Multiple failed login attempts"},
		{"source":"","message":"backup completed successfully"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(pipeline.gotRecords) != 2 {
		t.Fatalf("pipeline received %d records, want 2", len(pipeline.gotRecords))
	}
	if pipeline.gotRecords[1].Source != "unknown" {
		t.Errorf("empty source should default to unknown, got %q", pipeline.gotRecords[1].Source)
	}

	var resp struct {
		Results []struct {
			ID       string `json:"id"`
			Category string `json:"category"`
			Severity int    `json:"severity"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Severity != 6 {
		t.Errorf("severity = %d, want 6", resp.Results[0].Severity)
	}
}

func TestIngestLogsValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"logs":`, http.StatusBadRequest},
		{"empty batch", `{"logs":[]}`, http.StatusBadRequest},
		{"only blank lines", `{"logs":[{"source":"s","message":"  "}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newRouter(&fakePipeline{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIngestLogsPipelineError(t *testing.T) {
	t.Parallel()

	router := newRouter(&fakePipeline{err: errors.New("boom")}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs",
		strings.NewReader(`{"logs":[{"source":"s","message":"m"}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetIncident(t *testing.T) {
	t.Parallel()

	incs := &fakeIncidents{byID: map[string]*incident.Incident{
		"inc-1": sampleIncident("inc-1", incident.StatusOpen),
	}}
	router := newRouter(&fakePipeline{}, incs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/inc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got struct {
		incident.Incident
		SLAViolated       bool `json:"sla_violated"`
		NearingEscalation bool `json:"nearing_escalation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "inc-1" || got.Priority != incident.PriorityHighest {
		t.Errorf("incident = %+v", got)
	}
	if got.SLAViolated || got.NearingEscalation {
		t.Errorf("fresh incident reports sla_violated=%v nearing_escalation=%v", got.SLAViolated, got.NearingEscalation)
	}
}

func TestGetIncidentNotFound(t *testing.T) {
	t.Parallel()

	router := newRouter(&fakePipeline{}, &fakeIncidents{byID: map[string]*incident.Incident{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListIncidentsEscalating(t *testing.T) {
	t.Parallel()

	incs := &fakeIncidents{
		byID: map[string]*incident.Incident{
			"inc-1": sampleIncident("inc-1", incident.StatusOpen),
		},
		escalating: []*incident.Incident{sampleIncident("inc-2", incident.StatusInProgress)},
	}
	router := newRouter(&fakePipeline{}, incs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents?escalating=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Incidents []incident.Incident `json:"incidents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Incidents) != 1 || resp.Incidents[0].ID != "inc-2" {
		t.Errorf("incidents = %+v", resp.Incidents)
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	incs := &fakeIncidents{byID: map[string]*incident.Incident{
		"inc-1": sampleIncident("inc-1", incident.StatusOpen),
	}}
	router := newRouter(&fakePipeline{}, incs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc-1/transitions",
		strings.NewReader(`{"to":"in_progress","note":"on it"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got incident.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != incident.StatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
}

func TestTransitionConflict(t *testing.T) {
	t.Parallel()

	incs := &fakeIncidents{byID: map[string]*incident.Incident{
		"inc-1": sampleIncident("inc-1", incident.StatusResolved),
	}}
	router := newRouter(&fakePipeline{}, incs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc-1/transitions",
		strings.NewReader(`{"to":"open"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestTransitionNotFound(t *testing.T) {
	t.Parallel()

	router := newRouter(&fakePipeline{}, &fakeIncidents{byID: map[string]*incident.Incident{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/nope/transitions",
		strings.NewReader(`{"to":"closed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
