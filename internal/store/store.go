// Package store persists analysis results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/pocket-ats/internal/scoring"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("result not found")

// Record is one stored analysis.
type Record struct {
	ID         uuid.UUID           `json:"id"`
	JobText    string              `json:"jobDescription"`
	ResumeText string              `json:"resumeText"`
	ResumeURL  string              `json:"resumeURL"`
	Scores     scoring.ScoreTriple `json:"scores"`
	Degraded   bool                `json:"semanticDegraded"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// ResultStore saves and loads analysis records.
type ResultStore interface {
	Save(ctx context.Context, rec Record) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
}

func prepare(rec Record) Record {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Degraded = rec.Scores.Degraded()
	return rec
}
