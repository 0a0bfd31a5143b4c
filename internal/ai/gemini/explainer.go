package gemini

import (
	"context"
	_ "embed"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/ai"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/util"
)

//go:embed prompts/explain.md
var explainTemplate string

// Explainer asks the model for an itemized HTML critique of a score triple.
type Explainer struct {
	generator ai.Generator
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

func NewExplainer(generator ai.Generator, timeout time.Duration, maxLogLength int, logger *zap.Logger) *Explainer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Explainer{
		generator: generator,
		timeout:   timeout,
		maxLogLen: maxLogLength,
		logger:    logger,
	}
}

func (e *Explainer) Explain(ctx context.Context, pair scoring.DocumentPair, scores scoring.ScoreTriple) (string, error) {
	if e == nil || e.generator == nil {
		return "", ai.ErrMissingCredential
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := buildExplainPrompt(pair, scores)

	e.logger.Debug("gemini explain request",
		zap.String("ai_model", e.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	text, err := e.generator.GenerateContent(ctx, "", prompt)
	if err != nil {
		return "", err
	}

	e.logger.Debug("gemini explain response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", util.TruncateForLog(text, e.maxLogLen)),
	)

	return text, nil
}

func buildExplainPrompt(pair scoring.DocumentPair, scores scoring.ScoreTriple) string {
	return renderTemplate(explainTemplate, map[string]string{
		"{{JOB_DESCRIPTION}}": pair.JobText,
		"{{RESUME}}":          pair.ResumeText,
		"{{KEYWORD_SCORE}}":   strconv.Itoa(scores.Keyword),
		"{{TFIDF_SCORE}}":     strconv.Itoa(scores.TFIDF),
		"{{SEMANTIC_SCORE}}":  strconv.Itoa(scores.Semantic),
	})
}
