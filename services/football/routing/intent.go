// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"fmt"
	"math"
	"strings"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Tier 2: BM25 Intent Index
// =============================================================================

// BM25 tuning constants. Standard values recommended by Robertson et al.
const (
	// bm25K1 controls term frequency saturation. 1.5 is a robust middle
	// ground in the typical [1.2, 2.0] range.
	bm25K1 = 1.5

	// bm25B controls document length normalization. 0.75 is the standard
	// default.
	bm25B = 0.75

	// minIntentScore is the raw BM25 score below which tier 2 declines to
	// route. A single incidental shared term scores under this with the
	// built-in corpus.
	minIntentScore = 1.0
)

// intentSpec pairs a pipeline with the keyword corpus that describes
// questions it answers. The corpus is the BM25 "document" for the pipeline.
type intentSpec struct {
	pipeline datatypes.Pipeline
	keywords []string
}

var intentCorpus = []intentSpec{
	{
		pipeline: datatypes.PipelineTeamProfile,
		keywords: []string{
			"team overview strengths weaknesses offense defense",
			"how good is the team this season epa efficiency",
			"scouting report identity",
		},
	},
	{
		pipeline: datatypes.PipelineTeamComparison,
		keywords: []string{
			"compare matchup better team versus head to head",
			"which team wins advantage edge",
		},
	},
	{
		pipeline: datatypes.PipelineSituationEPA,
		keywords: []string{
			"run or pass play call down distance expected points",
			"should they throw rush situation value",
		},
	},
	{
		pipeline: datatypes.PipelineDecisionAnalysis,
		keywords: []string{
			"fourth down go for it punt kick field goal decision",
			"conversion attempt aggressive analytics says",
		},
	},
	{
		pipeline: datatypes.PipelinePlayerRankings,
		keywords: []string{
			"top best players rankings leaders by metric",
			"quarterback running back receiver tight end list",
		},
	},
	{
		pipeline: datatypes.PipelineSituationalTendencies,
		keywords: []string{
			"how often tendency likely frequency rate",
			"what do they call run heavy pass heavy blitz",
		},
	},
	{
		pipeline: datatypes.PipelineHistoricalQuery,
		keywords: []string{
			"history historical season year past record looked like",
			"back in that year performance",
		},
	},
}

// queryStopwords are dropped during tokenization. Domain words like "run",
// "pass", and "down" are deliberately kept.
var queryStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "do": true, "does": true, "did": true, "of": true,
	"for": true, "to": true, "and": true, "or": true, "in": true, "on": true,
	"at": true, "it": true, "my": true, "me": true, "i": true, "we": true,
	"what": true, "who": true, "this": true, "that": true, "with": true,
	"about": true, "their": true, "them": true, "they": true, "should": true,
}

// queryTerms tokenizes a query or corpus string into a deduplicated term
// set: lowercase, split on non-alphanumeric runs, stopwords and single
// characters removed.
func queryTerms(s string) map[string]bool {
	terms := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() < 2 {
			b.Reset()
			return
		}
		term := b.String()
		b.Reset()
		if !queryStopwords[term] {
			terms[term] = true
		}
	}
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// intentDoc holds the BM25 representation of one pipeline's keyword corpus.
type intentDoc struct {
	pipeline datatypes.Pipeline

	// tf is binary presence: the corpus is a deduplicated term set, so
	// tf=1 for every term. With seven short documents, IDF does the heavy
	// lifting and binary presence is sufficient.
	tf map[string]int

	// len is the unique-term count of the document.
	len int
}

// IntentIndex is a pre-built Okapi BM25 index over the pipeline intent
// corpora. IDF uses Lucene-style add-one smoothing:
// log((N+1)/(df+1)) + 1, which keeps every term's IDF >= 1.
//
// # Thread Safety
//
// Immutable after construction via NewIntentIndex. Safe for concurrent use.
type IntentIndex struct {
	docs   []intentDoc
	idf    map[string]float64
	avgLen float64
}

// NewIntentIndex builds the index from the built-in corpus.
func NewIntentIndex() *IntentIndex {
	docs := make([]intentDoc, 0, len(intentCorpus))
	totalLen := 0
	df := make(map[string]int)

	for _, spec := range intentCorpus {
		termSet := queryTerms(strings.Join(spec.keywords, " "))
		tf := make(map[string]int, len(termSet))
		for term := range termSet {
			tf[term] = 1
			df[term]++
		}
		docs = append(docs, intentDoc{pipeline: spec.pipeline, tf: tf, len: len(tf)})
		totalLen += len(tf)
	}

	n := len(docs)
	idf := make(map[string]float64, len(df))
	for term, docFreq := range df {
		idf[term] = math.Log(float64(n+1)/float64(docFreq+1)) + 1.0
	}

	return &IntentIndex{
		docs:   docs,
		idf:    idf,
		avgLen: float64(totalLen) / float64(n),
	}
}

// Score computes the raw BM25 score of every pipeline for the query.
// Pipelines with zero score are omitted.
func (idx *IntentIndex) Score(query string) map[datatypes.Pipeline]float64 {
	scores := make(map[datatypes.Pipeline]float64)
	terms := queryTerms(query)
	if len(terms) == 0 {
		return scores
	}
	for _, doc := range idx.docs {
		if s := idx.scoreDoc(terms, doc); s > 0 {
			scores[doc.pipeline] = s
		}
	}
	return scores
}

func (idx *IntentIndex) scoreDoc(terms map[string]bool, doc intentDoc) float64 {
	dl := float64(doc.len)
	var score float64
	for term := range terms {
		tf, inDoc := doc.tf[term]
		if !inDoc {
			continue
		}
		termIDF, known := idx.idf[term]
		if !known {
			continue
		}
		tfFloat := float64(tf)
		numerator := tfFloat * (bm25K1 + 1)
		lengthNorm := bm25K1 * (1.0 - bm25B + bm25B*dl/idx.avgLen)
		score += termIDF * (numerator / (tfFloat + lengthNorm))
	}
	return score
}

// Match scores the query and returns a request for the best-scoring pipeline
// whose required slots are satisfied.
//
// # Description
//
//	The "compare" family is ambiguous between team comparison and player
//	rankings, so the winner is adjusted by what the entities actually
//	resolve to: a position with no teams flips comparison to rankings, and
//	two teams flip rankings back to comparison. A best-scoring pipeline
//	with missing slots is returned as a Candidate diagnosis instead.
func (idx *IntentIndex) Match(text string, e datatypes.Entities) (*datatypes.PipelineRequest, *Candidate) {
	scores := idx.Score(text)
	best, bestScore := datatypes.PipelineTeamProfile, 0.0
	// Declaration order keeps exact-score ties deterministic.
	for _, p := range datatypes.AllPipelines() {
		if s, ok := scores[p]; ok && s > bestScore {
			best, bestScore = p, s
		}
	}
	if bestScore < minIntentScore {
		return nil, nil
	}

	switch best {
	case datatypes.PipelineTeamComparison:
		if e.Position != nil && e.Team1 == nil && e.Team2 == nil {
			best = datatypes.PipelinePlayerRankings
		}
	case datatypes.PipelinePlayerRankings:
		if e.Team1 != nil && e.Team2 != nil && e.Position == nil {
			best = datatypes.PipelineTeamComparison
		}
	}

	missing := best.MissingRequired(e)
	if len(missing) > 0 {
		return nil, &Candidate{
			Pipeline: best,
			Missing:  missing,
			Reason:   fmt.Sprintf("intent match %s (score %.2f) missing slots", best, bestScore),
		}
	}
	return &datatypes.PipelineRequest{
		Pipeline: best,
		Entities: e,
		Tier:     2,
		Reason:   fmt.Sprintf("intent match %s (score %.2f)", best, bestScore),
	}, nil
}
