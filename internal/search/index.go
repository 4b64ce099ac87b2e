// Package search ranks message bodies against a free-text query by Jaccard
// similarity of their word sets, |Q ∩ D| / |Q ∪ D|.
//
// An Index is built per request from one conversation's candidate messages
// and never mutated afterwards, so it may be shared between goroutines.
package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultK is used when TopK is asked for a non-positive number of results.
const DefaultK = 10

// Doc is one searchable message.
type Doc struct {
	ID   string
	Text string
}

// Result is a ranked document id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

type entry struct {
	id    string
	words set
	runes int
}

// Index holds the tokenized documents.
type Index struct {
	entries []entry
}

// New tokenizes docs. Documents without a single word are left out.
func New(docs []Doc) *Index {
	idx := &Index{entries: make([]entry, 0, len(docs))}
	for _, d := range docs {
		if w := words(d.Text); len(w) > 0 {
			idx.entries = append(idx.entries, entry{id: d.ID, words: w, runes: utf8.RuneCountInString(d.Text)})
		}
	}
	return idx
}

// Len returns the number of indexed documents.
func (x *Index) Len() int { return len(x.entries) }

// TopK returns up to k documents sharing at least one word with q, best
// first. Equal scores rank the shorter text first, then the smaller id.
func (x *Index) TopK(q string, k int) []Result {
	query := words(q)
	if len(query) == 0 || len(x.entries) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultK
	}

	type hit struct {
		e     *entry
		score float64
	}
	var hits []hit
	for i := range x.entries {
		e := &x.entries[i]
		shared := query.intersect(e.words)
		if shared == 0 {
			continue
		}
		hits = append(hits, hit{e, float64(shared) / float64(len(query)+len(e.words)-shared)})
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.e.runes, b.e.runes); c != 0 {
			return c
		}
		return strings.Compare(a.e.id, b.e.id)
	})

	var out []Result
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, Result{ID: h.e.id, Score: h.score})
	}
	return out
}

type set map[string]struct{}

func (s set) intersect(o set) int {
	if len(s) > len(o) {
		s, o = o, s
	}
	n := 0
	for w := range s {
		if _, ok := o[w]; ok {
			n++
		}
	}
	return n
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// words lower-cases s and returns its distinct letter/number runs.
func words(s string) set {
	found := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(found) == 0 {
		return nil
	}
	out := make(set, len(found))
	for _, w := range found {
		out[w] = struct{}{}
	}
	return out
}
