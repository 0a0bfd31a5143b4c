package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldMatcher names the matcher that produced a score.
	FieldMatcher = "matcher"
	// FieldScore carries a single score value.
	FieldScore = "score"
	// FieldStatus carries whether a score was computed or unavailable.
	FieldStatus = "score_status"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields, dropping entries whose
// key or value is blank after trimming.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches fields to logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CommonFields describes the AI provider and model. Empty values are omitted.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the provider and model fields to logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// StepFields describes one matcher run.
func StepFields(matcher string, score int, status string, took time.Duration) []zap.Field {
	fields := StringFields(
		StringField{Key: FieldMatcher, Value: matcher},
		StringField{Key: FieldStatus, Value: status},
	)
	return append(fields, zap.Int(FieldScore, score), zap.Duration("took", took))
}
