package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/pocket-ats/internal/extract"
	"github.com/spigell/pocket-ats/internal/scoring"
	"github.com/spigell/pocket-ats/internal/storage"
	"github.com/spigell/pocket-ats/internal/store"
)

type scoreOutput struct {
	ID               string `json:"id,omitempty"`
	ResumeURL        string `json:"resumeURL,omitempty"`
	KeywordScore     int    `json:"keywordScore"`
	TFIDFScore       int    `json:"tfidfScore"`
	SemanticScore    int    `json:"semanticScore"`
	SemanticDegraded bool   `json:"semanticDegraded"`
	Explanation      string `json:"explanation,omitempty"`
}

type resumeFile struct {
	name      string
	mediaType string
	data      []byte
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a resume against a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		runScore(cmd, false)
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Score a resume and ask the model to explain the scores",
	Run: func(cmd *cobra.Command, _ []string) {
		runScore(cmd, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{scoreCmd, explainCmd} {
		c.Flags().StringP("resume", "r", "", "path to the resume (.pdf or .txt)")
		c.Flags().String("job", "", "path to a file with the job description")
		c.Flags().String("job-text", "", "the job description itself")
		c.MarkFlagRequired("resume")
		c.MarkFlagsMutuallyExclusive("job", "job-text")
		rootCmd.AddCommand(c)
	}

	scoreCmd.Flags().Bool("save", false, "store the result in the configured result store")
}

func runScore(cmd *cobra.Command, withExplanation bool) {
	ctx := context.Background()

	logger := mustLogger()
	config := mustConfig(logger)

	resume, resumeText, err := readResume(cmd.Flag("resume").Value.String())
	if err != nil {
		logger.Fatal("reading the resume", zap.Error(err))
	}

	jobText, err := readJob(cmd.Flag("job").Value.String(), cmd.Flag("job-text").Value.String())
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	analyzer, err := newAnalyzer(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the analyzer", zap.Error(err))
	}

	pair := scoring.DocumentPair{ResumeText: resumeText, JobText: jobText}
	scores := analyzer.ComputeScores(ctx, pair)

	out := scoreOutput{
		KeywordScore:     scores.Keyword,
		TFIDFScore:       scores.TFIDF,
		SemanticScore:    scores.Semantic,
		SemanticDegraded: scores.Degraded(),
	}

	if withExplanation {
		out.Explanation = analyzer.Explain(ctx, pair, scores)
	}

	if save := cmd.Flag("save"); save != nil && save.Value.String() == "true" {
		out.ID, out.ResumeURL, err = saveResult(ctx, config, logger, resume, pair, scores)
		if err != nil {
			logger.Fatal("saving the result", zap.Error(err))
		}
		logger.Info("result saved", zap.String("id", out.ID))
	}

	// do not bother error since the output only holds plain values
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}

func readResume(path string) (*resumeFile, string, error) {
	mediaType, err := extract.DetectType(path)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := extract.ReadAll(f, viper.GetInt64("server.max-upload-bytes"))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}

	text, err := extract.Extract(data, mediaType)
	if err != nil {
		return nil, "", err
	}

	return &resumeFile{name: filepath.Base(path), mediaType: mediaType, data: data}, text, nil
}

// readJob takes the job description from a file, from the flag, or interactively.
func readJob(path, text string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if text != "" {
		return text, nil
	}

	prompt := promptui.Prompt{
		Label: "Job description",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("job description is required")
			}
			return nil
		},
	}

	return prompt.Run()
}

func saveResult(ctx context.Context, config *Config, logger *zap.Logger, resume *resumeFile, pair scoring.DocumentPair, scores scoring.ScoreTriple) (string, string, error) {
	results, closeStore, err := newStore(ctx, config.Database, logger)
	if err != nil {
		return "", "", err
	}
	defer closeStore()

	uploader, err := newUploader(ctx, config.Storage)
	if err != nil {
		return "", "", err
	}

	url, err := uploader.Upload(ctx, storage.Object{Filename: resume.name, ContentType: resume.mediaType, Data: resume.data})
	if err != nil {
		return "", "", err
	}

	id, err := results.Save(ctx, store.Record{
		JobText:    pair.JobText,
		ResumeText: pair.ResumeText,
		ResumeURL:  url,
		Scores:     scores,
	})
	if err != nil {
		return "", "", err
	}

	return id.String(), url, nil
}
