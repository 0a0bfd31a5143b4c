package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/pocket-ats/internal/scoring"
)

const schema = `CREATE TABLE IF NOT EXISTS ats_results (
	id                UUID PRIMARY KEY,
	job_description   TEXT NOT NULL,
	resume_text       TEXT NOT NULL,
	resume_url        TEXT NOT NULL DEFAULT '',
	keyword_score     INTEGER NOT NULL,
	tfidf_score       INTEGER NOT NULL,
	semantic_score    INTEGER NOT NULL,
	semantic_degraded BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres stores records in the ats_results table.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Migrate creates the results table when it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating ats_results table: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, rec Record) (uuid.UUID, error) {
	rec = prepare(rec)

	var id uuid.UUID
	err := p.pool.QueryRow(ctx,
		`INSERT INTO ats_results (id, job_description, resume_text, resume_url,
		        keyword_score, tfidf_score, semantic_score, semantic_degraded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		rec.ID, rec.JobText, rec.ResumeText, rec.ResumeURL,
		rec.Scores.Keyword, rec.Scores.TFIDF, rec.Scores.Semantic, rec.Degraded, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting result: %w", err)
	}

	return id, nil
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT id, job_description, resume_text, resume_url,
		        keyword_score, tfidf_score, semantic_score, semantic_degraded, created_at
		 FROM ats_results WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.JobText, &rec.ResumeText, &rec.ResumeURL,
		&rec.Scores.Keyword, &rec.Scores.TFIDF, &rec.Scores.Semantic, &rec.Degraded, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("selecting result: %w", err)
	}

	if rec.Degraded {
		rec.Scores.SemanticStatus = scoring.StatusUnavailable
	}

	return &rec, nil
}
