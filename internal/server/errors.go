package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/extract"
)

const (
	msgAnalyzeInputs   = "Resume and job description are required!"
	msgExplainInputs   = "Resume, job description, and scores are required!"
	msgUnsupportedType = "Only PDF and TXT resumes are supported!"
	msgExtraction      = "Error processing PDF file."
	msgPersistence     = "Database error while storing results."
	msgTooLarge        = "Resume file is too large."
)

// requestError carries the status and client-facing message of a failed request.
type requestError struct {
	status  int
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *requestError) Unwrap() error { return e.err }

func inputError(message string, err error) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, err: err}
}

func persistenceError(err error) *requestError {
	return &requestError{status: http.StatusInternalServerError, message: msgPersistence, err: err}
}

// extractionError maps a text extraction failure to its request error. An
// unsupported type is the client's fault, anything else is ours.
func extractionError(err error) *requestError {
	if errors.Is(err, extract.ErrUnsupportedType) {
		return inputError(msgUnsupportedType, err)
	}
	return &requestError{status: http.StatusInternalServerError, message: msgExtraction, err: err}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encoding json response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err *requestError) {
	fields := []zap.Field{zap.String("path", r.URL.Path), zap.Int("status", err.status), zap.Error(err)}
	if err.status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}
	s.errorResponse(w, err.status, err.message)
}
