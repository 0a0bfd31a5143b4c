package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/pocket-ats/internal/ai"
	"github.com/spigell/pocket-ats/internal/events"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/storage"
	"github.com/spigell/pocket-ats/internal/store"
)

const (
	resumeText = "Experienced Python developer with SQL and cloud computing skills"
	jobText    = "Looking for a Python developer with SQL and cloud experience"
)

type fixedMatcher struct {
	result scoring.Result
}

func (fixedMatcher) Name() string { return "semantic" }

func (m fixedMatcher) Score(context.Context, scoring.DocumentPair) scoring.Result { return m.result }

type recordingExplainer struct {
	mu     sync.Mutex
	scores scoring.ScoreTriple
	pair   scoring.DocumentPair
	err    error
}

func (e *recordingExplainer) Explain(_ context.Context, pair scoring.DocumentPair, scores scoring.ScoreTriple) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pair = pair
	e.scores = scores
	if e.err != nil {
		return "", e.err
	}
	return "<pre>looks good</pre>", nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, store.Record) (uuid.UUID, error) {
	return uuid.Nil, errors.New("connection refused")
}

func (failingStore) Get(context.Context, uuid.UUID) (*store.Record, error) {
	return nil, errors.New("connection refused")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AnalysisEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.AnalysisEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type fixture struct {
	server    *Server
	store     *store.Memory
	explainer *recordingExplainer
	publisher *recordingPublisher
}

func newFixture(t *testing.T, semantic scoring.Result, opts ...func(*Config, *Deps)) *fixture {
	t.Helper()

	f := &fixture{
		store:     store.NewMemory(),
		explainer: &recordingExplainer{},
		publisher: &recordingPublisher{},
	}

	cfg := Config{MaxUploadBytes: 1 << 16}
	deps := Deps{
		Analyzer: scoring.New(scoring.Deps{
			Semantic:  fixedMatcher{result: semantic},
			Explainer: f.explainer,
		}),
		Store:     f.store,
		Uploader:  storage.Placeholder{},
		Publisher: f.publisher,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	s, err := New(cfg, deps)
	require.NoError(t, err)
	f.server = s

	return f
}

type part struct {
	name        string
	filename    string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, path string, parts ...part) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.name, p.body))
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func resumePart(contentType, body string) part {
	return part{name: "resume", filename: "cv.txt", contentType: contentType, body: body}
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, scoring.Scored(85))

	rec := serve(f.server, multipartRequest(t, "/api/ats/analyze",
		resumePart("text/plain", resumeText),
		part{name: "jobDescription", body: jobText},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://your-storage-service.com/resumes/cv.txt", resp.ResumeURL)
	assert.Equal(t, 60, resp.KeywordScore)
	assert.Equal(t, 36, resp.TFIDFScore)
	assert.Equal(t, 85, resp.SemanticScore)
	assert.False(t, resp.SemanticDegraded)

	saved, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, jobText, saved.JobText)
	assert.Equal(t, resumeText, saved.ResumeText)
	assert.Equal(t, resp.ResumeURL, saved.ResumeURL)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, resp.ID.String(), f.publisher.events[0].ID)
	assert.Equal(t, 85, f.publisher.events[0].SemanticScore)
}

func TestAnalyzeDegradedSemantic(t *testing.T) {
	f := newFixture(t, scoring.Unavailable(ai.ErrMissingCredential))
	f.publisher.err = errors.New("broker down")

	rec := serve(f.server, multipartRequest(t, "/api/ats/analyze",
		resumePart("text/plain; charset=utf-8", resumeText),
		part{name: "jobDescription", body: jobText},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.SemanticScore)
	assert.True(t, resp.SemanticDegraded)
}

func TestAnalyzeRejections(t *testing.T) {
	tests := []struct {
		name       string
		parts      []part
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing resume",
			parts:      []part{{name: "jobDescription", body: jobText}},
			wantStatus: http.StatusBadRequest,
			wantError:  msgAnalyzeInputs,
		},
		{
			name:       "missing job description",
			parts:      []part{resumePart("text/plain", resumeText)},
			wantStatus: http.StatusBadRequest,
			wantError:  msgAnalyzeInputs,
		},
		{
			name:       "empty job description",
			parts:      []part{resumePart("text/plain", resumeText), {name: "jobDescription", body: ""}},
			wantStatus: http.StatusBadRequest,
			wantError:  msgAnalyzeInputs,
		},
		{
			name: "unsupported type",
			parts: []part{
				resumePart("application/vnd.openxmlformats-officedocument.wordprocessingml.document", "PK"),
				{name: "jobDescription", body: jobText},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  msgUnsupportedType,
		},
		{
			name: "corrupt pdf",
			parts: []part{
				resumePart("application/pdf", "%PDF-1.4 truncated"),
				{name: "jobDescription", body: jobText},
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  msgExtraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scoring.Scored(50))

			rec := serve(f.server, multipartRequest(t, "/api/ats/analyze", tt.parts...))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestAnalyzeNotMultipart(t *testing.T) {
	f := newFixture(t, scoring.Scored(50))

	req := httptest.NewRequest(http.MethodPost, "/api/ats/analyze", strings.NewReader(`{"jobDescription":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(f.server, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgAnalyzeInputs, decodeError(t, rec))
}

func TestAnalyzeTooLarge(t *testing.T) {
	f := newFixture(t, scoring.Scored(50), func(cfg *Config, _ *Deps) { cfg.MaxUploadBytes = 16 })

	rec := serve(f.server, multipartRequest(t, "/api/ats/analyze",
		resumePart("text/plain", strings.Repeat("python ", 10)),
		part{name: "jobDescription", body: jobText},
	))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAnalyzePersistenceFailure(t *testing.T) {
	f := newFixture(t, scoring.Scored(50), func(_ *Config, deps *Deps) { deps.Store = failingStore{} })

	rec := serve(f.server, multipartRequest(t, "/api/ats/analyze",
		resumePart("text/plain", resumeText),
		part{name: "jobDescription", body: jobText},
	))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgPersistence, decodeError(t, rec))
	assert.Empty(t, f.publisher.events)
}

func TestExplain(t *testing.T) {
	f := newFixture(t, scoring.Scored(50))

	rec := serve(f.server, multipartRequest(t, "/api/ats/explain",
		resumePart("text/plain", resumeText),
		part{name: "jobDescription", body: jobText},
		part{name: "keywordScore", body: "60"},
		part{name: "tfidfScore", body: "0"},
		part{name: "semanticScore", body: "85"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp explainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "<pre>looks good</pre>", resp.Explanation)
	assert.Equal(t, scoring.ScoreTriple{Keyword: 60, TFIDF: 0, Semantic: 85}, f.explainer.scores)
	assert.Equal(t, resumeText, f.explainer.pair.ResumeText)
}

func TestExplainFallback(t *testing.T) {
	f := newFixture(t, scoring.Scored(50))
	f.explainer.err = errors.New("model overloaded")

	rec := serve(f.server, multipartRequest(t, "/api/ats/explain",
		resumePart("text/plain", resumeText),
		part{name: "jobDescription", body: jobText},
		part{name: "keywordScore", body: "60"},
		part{name: "tfidfScore", body: "36"},
		part{name: "semanticScore", body: "85"},
	))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp explainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, scoring.ExplanationFailed, resp.Explanation)
}

func TestExplainRejections(t *testing.T) {
	base := func(scores ...part) []part {
		return append([]part{resumePart("text/plain", resumeText), {name: "jobDescription", body: jobText}}, scores...)
	}

	tests := []struct {
		name  string
		parts []part
	}{
		{name: "missing scores", parts: base()},
		{name: "one score missing", parts: base(part{name: "keywordScore", body: "1"}, part{name: "tfidfScore", body: "2"})},
		{name: "not a number", parts: base(part{name: "keywordScore", body: "high"}, part{name: "tfidfScore", body: "2"}, part{name: "semanticScore", body: "3"})},
		{name: "out of range", parts: base(part{name: "keywordScore", body: "101"}, part{name: "tfidfScore", body: "2"}, part{name: "semanticScore", body: "3"})},
		{name: "negative", parts: base(part{name: "keywordScore", body: "-1"}, part{name: "tfidfScore", body: "2"}, part{name: "semanticScore", body: "3"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scoring.Scored(50))

			rec := serve(f.server, multipartRequest(t, "/api/ats/explain", tt.parts...))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, msgExplainInputs, decodeError(t, rec))
		})
	}
}

func TestResult(t *testing.T) {
	f := newFixture(t, scoring.Scored(50))

	id, err := f.store.Save(context.Background(), store.Record{JobText: jobText, ResumeText: resumeText})
	require.NoError(t, err)

	rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/api/ats/results/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got store.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, jobText, got.JobText)

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/ats/results/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/ats/results/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthIndexAndCORS(t *testing.T) {
	f := newFixture(t, scoring.Scored(50), func(cfg *Config, _ *Deps) { cfg.CORSOrigin = "https://ats.example.com" })

	rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "https://ats.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")

	rec = serve(f.server, httptest.NewRequest(http.MethodOptions, "/api/ats/analyze", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(f.server, httptest.NewRequest(http.MethodGet, "/api/ats/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, scoring.Scored(50), func(cfg *Config, _ *Deps) {
		cfg.RateLimit = RateLimitConfig{RPS: 0.5, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(f.server, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/health", nil)
	other.RemoteAddr = "10.0.0.2:4242"
	assert.Equal(t, http.StatusOK, serve(f.server, other).Code)
}

func TestClientLimiterPrunesIdleClients(t *testing.T) {
	now := time.Now()
	l := newClientLimiter(RateLimitConfig{RPS: 1, Burst: 1})
	l.now = func() time.Time { return now }

	assert.Zero(t, l.wait("a"))
	assert.Positive(t, l.wait("a"))

	now = now.Add(limiterIdleTTL + time.Minute)
	assert.Zero(t, l.wait("b"))
	assert.NotContains(t, l.clients, "a")
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{Store: store.NewMemory()})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Analyzer: scoring.New(scoring.Deps{})})
	assert.Error(t, err)
}
