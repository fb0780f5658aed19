// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/klaxon/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/klaxon/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const incidentColumns = `id, key, category, source, severity, priority, status,
	summary, ticket_id, created_at, updated_at, due_at, transitions`

// CreateIfAbsent inserts inc. The partial unique index on active keys makes
// the insert lose cleanly when an active incident already holds the key; the
// loser then reads the winner back.
func (s *Store) CreateIfAbsent(ctx context.Context, inc *incident.Incident) (bool, *incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.CreateIfAbsent", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	transitionsJSON, err := json.Marshal(transitionsOrEmpty(inc.Transitions))
	if err != nil {
		return false, nil, fmt.Errorf("marshal transitions: %w", err)
	}

	query := `INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (key) WHERE status IN ('open', 'in_progress') DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		inc.ID, inc.Key, inc.Category, inc.Source, inc.Severity,
		string(inc.Priority), string(inc.Status), inc.Summary, inc.TicketID,
		inc.CreatedAt, inc.UpdatedAt, inc.DueAt, transitionsJSON,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, fmt.Errorf("insert incident: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil, nil
	}

	existing, err := s.getActiveByKey(ctx, inc.Key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, err
	}
	if existing == nil {
		// The winner resolved between our insert and read; treat the key as
		// free again and let the caller retry.
		return false, nil, fmt.Errorf("incident key %s: active holder vanished", inc.Key)
	}
	return false, existing, nil
}

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id string) (*incident.Incident, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncidentRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// Update persists the mutable fields of an existing incident.
func (s *Store) Update(ctx context.Context, inc *incident.Incident) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	transitionsJSON, err := json.Marshal(transitionsOrEmpty(inc.Transitions))
	if err != nil {
		return fmt.Errorf("marshal transitions: %w", err)
	}

	query := `UPDATE incidents SET
		status      = $2,
		ticket_id   = $3,
		updated_at  = $4,
		transitions = $5
	WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		inc.ID, string(inc.Status), inc.TicketID, inc.UpdatedAt, transitionsJSON,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s not found", inc.ID)
	}
	return nil
}

// ListActive returns active incidents ordered by due time ascending.
func (s *Store) ListActive(ctx context.Context) ([]*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListActive", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE status IN ('open', 'in_progress') ORDER BY due_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query active incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		inc, err := scanIncidentRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

func (s *Store) getActiveByKey(ctx context.Context, key string) (*incident.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE key = $1 AND status IN ('open', 'in_progress') LIMIT 1`
	return scanIncidentRow(s.pool.QueryRow(ctx, query, key))
}

func transitionsOrEmpty(ts []incident.Transition) []incident.Transition {
	if ts == nil {
		return []incident.Transition{}
	}
	return ts
}

// scanIncidentRow scans a single row into an incident.Incident.
// Returns (nil, nil) when no row is found.
func scanIncidentRow(row pgx.Row) (*incident.Incident, error) {
	var (
		inc             incident.Incident
		priority        string
		status          string
		transitionsJSON []byte
	)

	err := row.Scan(
		&inc.ID, &inc.Key, &inc.Category, &inc.Source, &inc.Severity,
		&priority, &status, &inc.Summary, &inc.TicketID,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.DueAt, &transitionsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	inc.Priority = incident.Priority(priority)
	inc.Status = incident.Status(status)

	if err := json.Unmarshal(transitionsJSON, &inc.Transitions); err != nil {
		return nil, fmt.Errorf("unmarshal transitions: %w", err)
	}
	if len(inc.Transitions) == 0 {
		inc.Transitions = nil
	}
	return &inc, nil
}
