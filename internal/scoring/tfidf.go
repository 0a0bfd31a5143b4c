package scoring

import (
	"context"
	"math"
)

const (
	jobDocument    = 0
	resumeDocument = 1
)

// TermWeighted scores the resume by the TF-IDF weight of every job word occurrence
// inside the resume, over the two-document corpus {job, resume}.
type TermWeighted struct{}

func (TermWeighted) Name() string { return "tfidf" }

func (TermWeighted) Score(_ context.Context, pair DocumentPair) Result {
	jobWords := pair.JobWords()
	if len(jobWords) == 0 {
		return Scored(0)
	}

	c := newCorpus(jobWords, pair.ResumeWords())

	var total float64
	for _, term := range jobWords {
		total += c.tfidf(term, resumeDocument)
	}

	return Scored(total / float64(len(jobWords)) * 100)
}

type corpus struct {
	docs []map[string]int
}

func newCorpus(documents ...[]string) *corpus {
	c := &corpus{docs: make([]map[string]int, 0, len(documents))}
	for _, words := range documents {
		counts := make(map[string]int, len(words))
		for _, w := range words {
			counts[w]++
		}
		c.docs = append(c.docs, counts)
	}
	return c
}

// tf is the raw count of term in the document.
func (c *corpus) tf(term string, doc int) float64 {
	return float64(c.docs[doc][term])
}

// idf is the smoothed inverse document frequency 1 + ln(N / (1 + df)).
func (c *corpus) idf(term string) float64 {
	df := 0
	for _, counts := range c.docs {
		if counts[term] > 0 {
			df++
		}
	}
	return 1 + math.Log(float64(len(c.docs))/float64(1+df))
}

func (c *corpus) tfidf(term string, doc int) float64 {
	tf := c.tf(term, doc)
	if tf == 0 {
		return 0
	}
	return tf * c.idf(term)
}
