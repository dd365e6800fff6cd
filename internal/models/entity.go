package models

import (
	"errors"
	"time"
)

// CanonicalEntity is the single stable identity that a set of name
// variants across sources refers to. The ID is the normalized form of
// the preferred display name and never changes once assigned.
type CanonicalEntity struct {
	ID              string
	DisplayName     string
	Teams           map[string]struct{} // teams this entity has been seen playing for
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
}

// Validate checks entity field constraints.
func (e *CanonicalEntity) Validate() error {
	if e.ID == "" {
		return errors.New("entity ID must not be empty")
	}
	if e.DisplayName == "" {
		return errors.New("entity display name must not be empty")
	}
	if e.OccurrenceCount < 0 {
		return errors.New("entity occurrence count must not be negative")
	}
	return nil
}

// HasTeam reports whether the entity has been observed with the team.
func (e *CanonicalEntity) HasTeam(team string) bool {
	_, ok := e.Teams[team]
	return ok
}

// TeamsConflict reports whether two entities have been seen with
// strictly disjoint, non-empty team sets. This is the conflict guard:
// such entities are clearly different people and must never be merged.
func TeamsConflict(a, b *CanonicalEntity) bool {
	if len(a.Teams) == 0 || len(b.Teams) == 0 {
		return false
	}
	for t := range a.Teams {
		if _, ok := b.Teams[t]; ok {
			return false
		}
	}
	return true
}

// MergeSuggestion is one likely-duplicate pair proposed by the offline
// maintenance scan, with the score and the tokens that matched.
type MergeSuggestion struct {
	EntityA        string
	EntityB        string
	Score          float64
	MatchingTokens []string
}
