package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/pocket-ats/internal/scoring"
)

func sampleRecord() Record {
	return Record{
		JobText:    "Looking for a Python developer",
		ResumeText: "Python developer",
		ResumeURL:  "https://files.example.com/resumes/cv.pdf",
		Scores: scoring.ScoreTriple{
			Keyword:        60,
			TFIDF:          36,
			Semantic:       0,
			SemanticStatus: scoring.StatusUnavailable,
		},
	}
}

func testStore(t *testing.T, s ResultStore) {
	t.Helper()
	ctx := context.Background()

	id, err := s.Save(ctx, sampleRecord())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Looking for a Python developer", got.JobText)
	assert.Equal(t, "Python developer", got.ResumeText)
	assert.Equal(t, "https://files.example.com/resumes/cv.pdf", got.ResumeURL)
	assert.Equal(t, 60, got.Scores.Keyword)
	assert.Equal(t, 36, got.Scores.TFIDF)
	assert.Equal(t, 0, got.Scores.Semantic)
	assert.True(t, got.Degraded)
	assert.True(t, got.Scores.Degraded())
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestMemoryKeepsProvidedID(t *testing.T) {
	m := NewMemory()
	rec := sampleRecord()
	rec.ID = uuid.New()

	id, err := m.Save(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, id)

	_, err = m.Save(context.Background(), rec)
	assert.Error(t, err)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("ATS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ATS_TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	// Migrate is idempotent.
	require.NoError(t, db.Migrate(ctx))

	testStore(t, db)
}
