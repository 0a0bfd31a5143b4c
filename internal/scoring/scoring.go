// Package scoring computes how well a resume matches a job description.
//
// Three matchers produce one score each: a lexical overlap score, a term-weighted
// (TF-IDF) score, and a semantic score delegated to a language model. Every score
// lies in the closed range [0, MaxScore].
package scoring

import (
	"context"
	"errors"
	"math"
	"strings"
)

// MaxScore is the ceiling of every score. A raw value of 100 or more is reported
// as MaxScore so that no score reads as a perfect match.
const MaxScore = 99

// ErrInsufficientInput is reported when the job text has no words to score against.
var ErrInsufficientInput = errors.New("job text has no words")

// DocumentPair is the input of one scoring run.
type DocumentPair struct {
	ResumeText string
	JobText    string
}

// JobWords returns the lower-cased whitespace-separated words of the job text.
func (p DocumentPair) JobWords() []string { return Tokenize(p.JobText) }

// ResumeWords returns the lower-cased whitespace-separated words of the resume text.
func (p DocumentPair) ResumeWords() []string { return Tokenize(p.ResumeText) }

// HasJobWords reports whether the job text contains at least one word.
func (p DocumentPair) HasJobWords() bool { return len(strings.Fields(p.JobText)) > 0 }

// Tokenize lower-cases text and splits it on runs of whitespace. Leading and
// trailing whitespace never produce empty tokens.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Status tells a computed score apart from a score that could not be computed.
type Status int

const (
	StatusScored Status = iota
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusScored:
		return "scored"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single matcher.
type Result struct {
	Value  int
	Status Status
	// Err explains why the score is unavailable. Nil when Status is StatusScored.
	Err error
}

// Scored clamps raw into [0, MaxScore] and wraps it as a computed result.
func Scored(raw float64) Result {
	return Result{Value: Clamp(raw), Status: StatusScored}
}

// Unavailable returns a zero-valued result carrying the reason it could not be computed.
func Unavailable(err error) Result {
	return Result{Value: 0, Status: StatusUnavailable, Err: err}
}

// Clamp rounds raw half up and bounds it to [0, MaxScore]. NaN maps to 0.
func Clamp(raw float64) int {
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}

	rounded := math.Floor(raw + 0.5)
	if rounded >= MaxScore {
		return MaxScore
	}

	return int(rounded)
}

// ScoreTriple holds the three scores produced for one DocumentPair.
type ScoreTriple struct {
	Keyword  int `json:"keywordScore"`
	TFIDF    int `json:"tfidfScore"`
	Semantic int `json:"semanticScore"`

	SemanticStatus Status `json:"-"`
}

// Degraded reports whether the semantic score fell back to zero because the
// language model could not produce one.
func (t ScoreTriple) Degraded() bool {
	return t.SemanticStatus == StatusUnavailable
}

// Matcher computes one score of the triple.
type Matcher interface {
	Name() string
	Score(ctx context.Context, pair DocumentPair) Result
}

// Explainer produces a natural-language critique of a score triple.
type Explainer interface {
	Explain(ctx context.Context, pair DocumentPair, scores ScoreTriple) (string, error)
}
