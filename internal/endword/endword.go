// Package endword detects conversation-ending phrases ("goodbye", "that's
// all, thanks") in final transcripts.
//
// Matching is tolerant of recognition noise: a transcript matches a
// configured phrase when it contains the phrase verbatim, or when a sliding
// n-gram of the transcript aligns with the phrase both phonetically (Double
// Metaphone) and by Jaro-Winkler similarity above a configurable threshold.
package endword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultThreshold = 0.85

// Option is a functional option for configuring a [Filter].
type Option func(*Filter)

// WithThreshold sets the minimum Jaro-Winkler score for a phonetic candidate
// to count as a match. Default: 0.85.
func WithThreshold(threshold float64) Option {
	return func(f *Filter) { f.threshold = threshold }
}

// Filter matches transcripts against a fixed set of end-call phrases. It is
// read-only after construction and safe for concurrent use.
type Filter struct {
	phrases   []phrase
	threshold float64
}

// phrase is one configured end phrase with precomputed phonetic codes.
type phrase struct {
	text  string
	words int
	codes [][2]string
}

// New creates a Filter for the given phrases. Phrases are matched
// case-insensitively; empty phrases are ignored.
func New(phrases []string, opts ...Option) *Filter {
	f := &Filter{threshold: defaultThreshold}
	for _, o := range opts {
		o(f)
	}
	for _, p := range phrases {
		p = normalize(p)
		if p == "" {
			continue
		}
		words := strings.Fields(p)
		codes := make([][2]string, len(words))
		for i, w := range words {
			primary, secondary := matchr.DoubleMetaphone(w)
			codes[i] = [2]string{primary, secondary}
		}
		f.phrases = append(f.phrases, phrase{text: p, words: len(words), codes: codes})
	}
	return f
}

// Match reports whether the transcript contains one of the configured end
// phrases, returning the matched phrase.
func (f *Filter) Match(transcript string) (string, bool) {
	text := normalize(transcript)
	if text == "" || len(f.phrases) == 0 {
		return "", false
	}

	for _, p := range f.phrases {
		if strings.Contains(text, p.text) {
			return p.text, true
		}
	}

	words := strings.Fields(text)
	for _, p := range f.phrases {
		for start := 0; start+p.words <= len(words); start++ {
			gram := words[start : start+p.words]
			if f.matchGram(gram, p) {
				return p.text, true
			}
		}
	}
	return "", false
}

// matchGram reports whether an n-gram aligns with the phrase: every word
// must either share a Double Metaphone code with its counterpart or clear
// the Jaro-Winkler threshold, and the full strings must clear it too.
func (f *Filter) matchGram(gram []string, p phrase) bool {
	for i, w := range gram {
		primary, secondary := matchr.DoubleMetaphone(w)
		if !codesOverlap([2]string{primary, secondary}, p.codes[i]) &&
			matchr.JaroWinkler(w, strings.Fields(p.text)[i], false) < f.threshold {
			return false
		}
	}
	return matchr.JaroWinkler(strings.Join(gram, " "), p.text, false) >= f.threshold
}

func codesOverlap(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if y != "" && x == y {
				return true
			}
		}
	}
	return false
}

// normalize lowercases and strips punctuation so "Goodbye!" matches
// "goodbye".
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
