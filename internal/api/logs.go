package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/klaxon/internal/logrec"
	"github.com/linnemanlabs/klaxon/internal/policy"
	"github.com/linnemanlabs/klaxon/internal/process"
)

// maxBatchSize bounds one ingest request.
const maxBatchSize = 1000

type ingestRequest struct {
	Logs []ingestLine `json:"logs"`
}

type ingestLine struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

type ingestResponse struct {
	Results   []ingestResult `json:"results"`
	Stats     *policy.Stats  `json:"stats"`
	Incidents []string       `json:"incident_ids,omitempty"`
}

type ingestResult struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Stage      string  `json:"stage"`
	Severity   int     `json:"severity"`
}

func (a *API) handleIngestLogs(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if len(req.Logs) == 0 {
		http.Error(w, `{"error":"empty batch"}`, http.StatusBadRequest)
		return
	}
	if len(req.Logs) > maxBatchSize {
		http.Error(w, `{"error":"batch too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	records := make([]logrec.Record, 0, len(req.Logs))
	for i, line := range req.Logs {
		if strings.TrimSpace(line.Message) == "" {
			a.logger.Warn(r.Context(), "skipping empty log line", "index", i, "source", line.Source)
			continue
		}
		source := line.Source
		if source == "" {
			source = "unknown"
		}
		records = append(records, logrec.New(source, line.Message))
	}
	if len(records) == 0 {
		http.Error(w, `{"error":"no usable log lines"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("klaxon.ingest.batch_size", len(records)))

	summary, err := a.pipeline.Process(r.Context(), records)
	if err != nil {
		a.logger.Error(r.Context(), err, "batch processing failed", "batch_size", len(records))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, toIngestResponse(summary))
}

func toIngestResponse(summary *process.Summary) ingestResponse {
	results := make([]ingestResult, 0, len(summary.Events))
	for _, ev := range summary.Events {
		results = append(results, ingestResult{
			ID:         ev.Result.Record.ID,
			Category:   string(ev.Result.Category),
			Confidence: ev.Result.Confidence,
			Stage:      string(ev.Result.Stage),
			Severity:   ev.Severity,
		})
	}
	return ingestResponse{
		Results:   results,
		Stats:     summary.Stats,
		Incidents: summary.Incidents,
	}
}
