package gemini

import (
	"context"
	_ "embed"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/ai"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/util"
)

//go:embed prompts/semantic.md
var semanticTemplate string

const (
	defaultMaxLogLength = 200
	defaultTimeout      = 30 * time.Second

	semanticSystemInstruction = "You compare resumes and job descriptions for similarity."
)

var digitsRe = regexp.MustCompile(`\d+`)

// SemanticMatcher scores a resume by asking the model for a 0-100 similarity rating.
type SemanticMatcher struct {
	generator ai.Generator
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

// NewSemanticMatcher returns a matcher backed by generator. A nil generator is
// allowed: every score is then reported as unavailable.
func NewSemanticMatcher(generator ai.Generator, timeout time.Duration, maxLogLength int, logger *zap.Logger) *SemanticMatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SemanticMatcher{
		generator: generator,
		timeout:   timeout,
		maxLogLen: maxLogLength,
		logger:    logger,
	}
}

func (m *SemanticMatcher) Name() string { return "semantic" }

func (m *SemanticMatcher) Score(ctx context.Context, pair scoring.DocumentPair) scoring.Result {
	if !pair.HasJobWords() {
		return scoring.Unavailable(scoring.ErrInsufficientInput)
	}
	if m.generator == nil {
		return scoring.Unavailable(ai.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prompt := renderTemplate(semanticTemplate, map[string]string{
		"{{JOB_DESCRIPTION}}": pair.JobText,
		"{{RESUME}}":          pair.ResumeText,
	})

	m.logger.Debug("gemini semantic request",
		zap.String("ai_model", m.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", util.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.generator.GenerateContent(ctx, semanticSystemInstruction, prompt)
	if err != nil {
		return scoring.Unavailable(err)
	}

	m.logger.Debug("gemini semantic response",
		zap.String("ai_model", m.generator.Model()),
		zap.String("response_preview", util.TruncateForLog(raw, m.maxLogLen)),
	)

	score, err := ParseScore(raw)
	if err != nil {
		m.logger.Warn("could not extract similarity score",
			zap.String("response_preview", util.TruncateForLog(raw, m.maxLogLen)),
		)
		return scoring.Unavailable(err)
	}

	return scoring.Scored(float64(score))
}

// ParseScore extracts the first run of decimal digits anywhere in a model answer.
// Runs too long for an int saturate to math.MaxInt.
func ParseScore(raw string) (int, error) {
	digits := digitsRe.FindString(raw)
	if digits == "" {
		return 0, ai.ErrUnparseableScore
	}

	score, err := strconv.Atoi(digits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt, nil
		}
		return 0, ai.ErrUnparseableScore
	}

	return score, nil
}

// renderTemplate substitutes every placeholder in a single pass so that values
// containing placeholder text are left untouched.
func renderTemplate(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for placeholder, value := range values {
		pairs = append(pairs, placeholder, value)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}
