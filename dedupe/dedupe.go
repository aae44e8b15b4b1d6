// Package dedupe collapses exact repeats of a listing.
package dedupe

import (
	"habitat_scrooper/identity"
	"habitat_scrooper/models"
)

// Discard records one dropped repeat and the record it repeated.
type Discard struct {
	Key      string
	KeptID   string
	Dropped  models.ScoredProperty
	Position int // index of the dropped record in the input
}

type Deduplicator struct {
	OnDiscard func(Discard)
}

func New(onDiscard func(Discard)) *Deduplicator {
	return &Deduplicator{OnDiscard: onDiscard}
}

// Dedupe keeps the first record per identity key, in input order. Running
// it on its own output returns that output unchanged.
func (d *Deduplicator) Dedupe(props []models.ScoredProperty) ([]models.ScoredProperty, []Discard) {
	kept := make([]models.ScoredProperty, 0, len(props))
	firstSeen := make(map[string]string, len(props))
	var discards []Discard

	for i, p := range props {
		key := identity.Key(&p.CanonicalProperty)
		if keptID, dup := firstSeen[key]; dup {
			discard := Discard{Key: key, KeptID: keptID, Dropped: p, Position: i}
			discards = append(discards, discard)
			if d.OnDiscard != nil {
				d.OnDiscard(discard)
			}
			continue
		}
		firstSeen[key] = p.ID
		kept = append(kept, p)
	}
	return kept, discards
}
