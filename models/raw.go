package models

import "strings"

// RawRecord is what an adapter pulled out of one listing block before any
// type coercion. Single-valued fields hold one element.
type RawRecord map[string][]string

func (r RawRecord) Set(key, value string) {
	r[key] = []string{value}
}

func (r RawRecord) Add(key, value string) {
	r[key] = append(r[key], value)
}

// Get returns the first value for key, trimmed.
func (r RawRecord) Get(key string) string {
	if vals := r[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func (r RawRecord) List(key string) []string {
	return r[key]
}

func (r RawRecord) Has(key string) bool {
	return len(r[key]) > 0
}

// ScrapeBatch is one adapter invocation's output.
type ScrapeBatch struct {
	Source  string      `json:"source"`
	Records []RawRecord `json:"-"`
	Pages   int         `json:"pages"`
	Skipped int         `json:"skipped"`
	// PostFiltered lists populated requirements the source could not filter
	// natively; the evaluator enforces them after the fetch.
	PostFiltered []string `json:"postFiltered,omitempty"`
}
