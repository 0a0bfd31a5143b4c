package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/events"
	"github.com/spigell/pocket-ats/internal/extract"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/storage"
	"github.com/spigell/pocket-ats/internal/store"
)

const (
	resumeField    = "resume"
	formOverhead   = 1 << 20
	publishTimeout = 5 * time.Second
)

type analyzeForm struct {
	JobDescription string `mapstructure:"jobDescription" validate:"required"`
}

// Scores are pointers so that an explicit 0 is told apart from a missing field.
type explainForm struct {
	JobDescription string `mapstructure:"jobDescription" validate:"required"`
	KeywordScore   *int   `mapstructure:"keywordScore" validate:"required,min=0,max=100"`
	TFIDFScore     *int   `mapstructure:"tfidfScore" validate:"required,min=0,max=100"`
	SemanticScore  *int   `mapstructure:"semanticScore" validate:"required,min=0,max=100"`
}

type analyzeResponse struct {
	ID               uuid.UUID `json:"id"`
	ResumeURL        string    `json:"resumeURL"`
	KeywordScore     int       `json:"keywordScore"`
	TFIDFScore       int       `json:"tfidfScore"`
	SemanticScore    int       `json:"semanticScore"`
	SemanticDegraded bool      `json:"semanticDegraded"`
}

type explainResponse struct {
	Explanation string `json:"explanation"`
}

type resumeUpload struct {
	filename  string
	mediaType string
	data      []byte
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pocket-ats is running\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	upload, values, rerr := s.readMultipart(w, r, msgAnalyzeInputs)
	if rerr != nil {
		s.fail(w, r, rerr)
		return
	}

	var form analyzeForm
	if err := s.decodeForm(values, &form); err != nil {
		s.fail(w, r, inputError(msgAnalyzeInputs, err))
		return
	}

	resumeText, err := extract.Extract(upload.data, upload.mediaType)
	if err != nil {
		s.fail(w, r, extractionError(err))
		return
	}

	ctx := r.Context()
	pair := scoring.DocumentPair{ResumeText: resumeText, JobText: form.JobDescription}
	scores := s.analyzer.ComputeScores(ctx, pair)

	resumeURL, err := s.uploader.Upload(ctx, storage.Object{
		Filename:    upload.filename,
		ContentType: upload.mediaType,
		Data:        upload.data,
	})
	if err != nil {
		s.fail(w, r, persistenceError(err))
		return
	}

	id, err := s.store.Save(ctx, store.Record{
		JobText:    form.JobDescription,
		ResumeText: resumeText,
		ResumeURL:  resumeURL,
		Scores:     scores,
	})
	if err != nil {
		s.fail(w, r, persistenceError(err))
		return
	}

	s.publish(ctx, events.AnalysisEvent{
		ID:               id.String(),
		ResumeURL:        resumeURL,
		KeywordScore:     scores.Keyword,
		TFIDFScore:       scores.TFIDF,
		SemanticScore:    scores.Semantic,
		SemanticDegraded: scores.Degraded(),
		CompletedAt:      time.Now().UTC(),
	})

	s.jsonResponse(w, http.StatusOK, analyzeResponse{
		ID:               id,
		ResumeURL:        resumeURL,
		KeywordScore:     scores.Keyword,
		TFIDFScore:       scores.TFIDF,
		SemanticScore:    scores.Semantic,
		SemanticDegraded: scores.Degraded(),
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	upload, values, rerr := s.readMultipart(w, r, msgExplainInputs)
	if rerr != nil {
		s.fail(w, r, rerr)
		return
	}

	var form explainForm
	if err := s.decodeForm(values, &form); err != nil {
		s.fail(w, r, inputError(msgExplainInputs, err))
		return
	}

	resumeText, err := extract.Extract(upload.data, upload.mediaType)
	if err != nil {
		s.fail(w, r, extractionError(err))
		return
	}

	pair := scoring.DocumentPair{ResumeText: resumeText, JobText: form.JobDescription}
	explanation := s.analyzer.Explain(r.Context(), pair, scoring.ScoreTriple{
		Keyword:  *form.KeywordScore,
		TFIDF:    *form.TFIDFScore,
		Semantic: *form.SemanticScore,
	})

	s.jsonResponse(w, http.StatusOK, explainResponse{Explanation: explanation})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, inputError("Invalid result id.", err))
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fail(w, r, &requestError{status: http.StatusNotFound, message: "Result not found.", err: err})
		return
	case err != nil:
		s.fail(w, r, &requestError{status: http.StatusInternalServerError, message: "Database error while reading results.", err: err})
		return
	}

	s.jsonResponse(w, http.StatusOK, rec)
}

// readMultipart parses the upload form and returns the resume file together with
// the text fields. Empty fields count as missing.
func (s *Server) readMultipart(w http.ResponseWriter, r *http.Request, missing string) (*resumeUpload, map[string]any, *requestError) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, &requestError{status: http.StatusRequestEntityTooLarge, message: msgTooLarge, err: err}
		}
		return nil, nil, inputError(missing, err)
	}

	file, header, err := r.FormFile(resumeField)
	if err != nil {
		return nil, nil, inputError(missing, err)
	}
	defer file.Close()

	data, err := extract.ReadAll(file, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, nil, &requestError{status: http.StatusRequestEntityTooLarge, message: msgTooLarge, err: err}
	}

	return &resumeUpload{
		filename:  header.Filename,
		mediaType: header.Header.Get("Content-Type"),
		data:      data,
	}, formValues(r.MultipartForm), nil
}

func formValues(form *multipart.Form) map[string]any {
	values := make(map[string]any)
	if form == nil {
		return values
	}
	for key, vals := range form.Value {
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		values[key] = vals[0]
	}
	return values
}

func (s *Server) decodeForm(values map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(values); err != nil {
		return err
	}
	return s.validate.Struct(out)
}

func (s *Server) publish(ctx context.Context, event events.AnalysisEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing analysis event", zap.String("id", event.ID), zap.Error(err))
	}
}
