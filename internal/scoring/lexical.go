package scoring

import "context"

// Lexical scores the share of job words that reappear in the resume.
//
// Every resume word found in the job vocabulary counts, including repeats, so a
// resume that repeats job words can exceed 100% before clamping.
type Lexical struct{}

func (Lexical) Name() string { return "keyword" }

func (Lexical) Score(_ context.Context, pair DocumentPair) Result {
	jobWords := pair.JobWords()
	if len(jobWords) == 0 {
		return Scored(0)
	}

	vocabulary := make(map[string]struct{}, len(jobWords))
	for _, word := range jobWords {
		vocabulary[word] = struct{}{}
	}

	matches := 0
	for _, word := range pair.ResumeWords() {
		if _, ok := vocabulary[word]; ok {
			matches++
		}
	}

	return Scored(float64(matches) / float64(len(jobWords)) * 100)
}
