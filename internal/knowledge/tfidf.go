package knowledge

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

type sparseVec = map[int]float64

// tfidfIndex scores articles against free-text queries. Document i of the
// index is article i of the slice it was built from.
type tfidfIndex struct {
	vocab map[string]int
	idf   []float64
	docs  []sparseVec
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func buildTFIDFIndex(texts []string) *tfidfIndex {
	if len(texts) == 0 {
		return &tfidfIndex{vocab: make(map[string]int)}
	}

	vocab := make(map[string]int)
	tokenized := make([][]string, len(texts))
	for i, text := range texts {
		tokenized[i] = tokenize(text)
		for _, tok := range tokenized[i] {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(texts))
	for i, tokens := range tokenized {
		tf := make(map[int]int)
		for _, tok := range tokens {
			tf[vocab[tok]]++
		}
		vec := make(sparseVec, len(tf))
		for idx, count := range tf {
			vec[idx] = float64(count)
			df[idx]++
		}
		docs[i] = vec
	}

	n := float64(len(texts))
	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}
	for _, vec := range docs {
		for idx := range vec {
			vec[idx] *= idf[idx]
		}
	}

	return &tfidfIndex{vocab: vocab, idf: idf, docs: docs}
}

func (idx *tfidfIndex) queryVec(query string) sparseVec {
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := make(sparseVec, len(tf))
	for i, count := range tf {
		vec[i] = float64(count) * idx.idf[i]
	}
	return vec
}

// scores returns the cosine similarity of query to every document.
func (idx *tfidfIndex) scores(query string) []float64 {
	out := make([]float64, len(idx.docs))
	qvec := idx.queryVec(query)
	if len(qvec) == 0 {
		return out
	}
	for i, dvec := range idx.docs {
		out[i] = cosineSim(qvec, dvec)
	}
	return out
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for i, va := range a {
		if vb, ok := b[i]; ok {
			dot += va * vb
		}
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type scored struct {
	index    int
	score    float64
	titleHit bool
}

func sortScored(results []scored) {
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].score != results[b].score {
			return results[a].score > results[b].score
		}
		return results[a].titleHit && !results[b].titleHit
	})
}
