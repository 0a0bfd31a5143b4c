package scoring

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/pocket-ats/internal/ai"
	"github.com/spigell/pocket-ats/internal/logger"
)

const (
	// ExplanationMissingKey is returned by Explain when no model credential is configured.
	ExplanationMissingKey = "API key is missing."
	// ExplanationFailed is returned by Explain when the model could not produce an answer.
	ExplanationFailed = "Error generating explanation."
)

// Deps aggregates the collaborators of an Orchestrator. Nil matchers fall back to
// the built-in lexical and term-weighted matchers; a nil Semantic matcher reports
// every semantic score as unavailable.
type Deps struct {
	Keyword   Matcher
	TFIDF     Matcher
	Semantic  Matcher
	Explainer Explainer
	Logger    *zap.Logger
}

// Orchestrator runs the three matchers against one DocumentPair.
type Orchestrator struct {
	keyword   Matcher
	tfidf     Matcher
	semantic  Matcher
	explainer Explainer
	logger    *zap.Logger
}

func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		keyword:   deps.Keyword,
		tfidf:     deps.TFIDF,
		semantic:  deps.Semantic,
		explainer: deps.Explainer,
		logger:    logger.WithFields(deps.Logger),
	}

	if o.keyword == nil {
		o.keyword = Lexical{}
	}
	if o.tfidf == nil {
		o.tfidf = TermWeighted{}
	}
	if o.semantic == nil {
		o.semantic = unavailableMatcher{name: "semantic", err: ai.ErrMissingCredential}
	}

	return o
}

// ComputeScores runs every matcher concurrently and returns once all of them finished.
// A semantic failure never fails the call: it degrades to a zero score and is
// flagged on the returned triple.
func (o *Orchestrator) ComputeScores(ctx context.Context, pair DocumentPair) ScoreTriple {
	steps := []Matcher{o.keyword, o.tfidf, o.semantic}
	results := make([]Result, len(steps))

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range steps {
		g.Go(func() error {
			start := time.Now()
			results[i] = step.Score(gctx, pair)
			o.logStep(step.Name(), results[i], time.Since(start))
			return nil
		})
	}
	// Matchers report failures through Result, never through the group.
	_ = g.Wait()

	triple := ScoreTriple{
		Keyword:        results[0].Value,
		TFIDF:          results[1].Value,
		Semantic:       results[2].Value,
		SemanticStatus: results[2].Status,
	}

	o.logger.Info("scores computed",
		zap.Int("keyword_score", triple.Keyword),
		zap.Int("tfidf_score", triple.TFIDF),
		zap.Int("semantic_score", triple.Semantic),
		zap.Bool("degraded", triple.Degraded()),
	)

	return triple
}

// Explain asks the model for a critique of scores. It never fails: when the model
// is unavailable a fixed fallback text is returned instead.
func (o *Orchestrator) Explain(ctx context.Context, pair DocumentPair, scores ScoreTriple) string {
	if o.explainer == nil {
		o.logger.Warn("explanation skipped", zap.Error(ai.ErrMissingCredential))
		return ExplanationMissingKey
	}

	text, err := o.explainer.Explain(ctx, pair, scores)
	switch {
	case errors.Is(err, ai.ErrMissingCredential):
		o.logger.Warn("explanation skipped", zap.Error(err))
		return ExplanationMissingKey
	case err != nil:
		o.logger.Error("generating explanation", zap.Error(err))
		return ExplanationFailed
	}

	return text
}

func (o *Orchestrator) logStep(name string, res Result, took time.Duration) {
	fields := logger.StepFields(name, res.Value, res.Status.String(), took)
	if res.Status == StatusUnavailable {
		o.logger.Warn("matcher degraded", append(fields, zap.Error(res.Err))...)
		return
	}
	o.logger.Debug("matcher step", fields...)
}

type unavailableMatcher struct {
	name string
	err  error
}

func (m unavailableMatcher) Name() string { return m.name }

func (m unavailableMatcher) Score(context.Context, DocumentPair) Result { return Unavailable(m.err) }
