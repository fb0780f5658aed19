package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"

	"github.com/linnemanlabs/klaxon/internal/process"
)

// StoreBatch bulk-inserts processed events via COPY. Implements
// process.EventSink.
func (s *Store) StoreBatch(ctx context.Context, events []process.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "pgstore.StoreBatch", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "COPY"),
		attribute.Int("db.batch.size", len(events)),
	))
	defer span.End()

	rows := make([][]any, 0, len(events))
	for i := range events {
		ev := &events[i]
		signalsJSON, err := json.Marshal(signalsOrEmpty(ev.Result.Signals))
		if err != nil {
			return fmt.Errorf("marshal signals: %w", err)
		}
		rows = append(rows, []any{
			ev.Result.Record.ID,
			ev.Result.Record.Source,
			ev.Result.Record.Message,
			ev.Result.Record.ReceivedAt,
			string(ev.Result.Category),
			ev.Result.Confidence,
			string(ev.Result.Stage),
			signalsJSON,
			ev.Severity,
			ev.ProcessedAt,
		})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"log_events"},
		[]string{"id", "source", "message", "received_at", "category", "confidence", "stage", "signals", "severity", "processed_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("copy log_events: %w", err)
	}
	return nil
}

func signalsOrEmpty(signals []string) []string {
	if signals == nil {
		return []string{}
	}
	return signals
}
