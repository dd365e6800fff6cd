// Package resolver maintains canonical identities for players and teams
// and maps raw source spellings onto them.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcqweb/goosealerts/internal/logger"
	"github.com/mcqweb/goosealerts/internal/models"
	"github.com/mcqweb/goosealerts/internal/names"
	"github.com/mcqweb/goosealerts/internal/storage"
)

// ErrConflictingTeams is returned when a merge is blocked by the
// conflict guard: both entities have been seen with non-empty, disjoint
// team sets and are therefore different people.
var ErrConflictingTeams = errors.New("resolver: entities have conflicting team history")

// Context carries what the caller knows about the sighting.
type Context struct {
	Team      string
	FixtureID string
}

// Resolver resolves raw names to canonical entities against a durable
// store. Safe for concurrent use: writes for the same normalized name
// are serialized on a per-key mutex, reads run concurrently.
type Resolver struct {
	store *storage.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a resolver over the given store.
func New(store *storage.Store) *Resolver {
	return &Resolver{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *Resolver) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Resolve maps a raw name to its canonical entity, creating aliases or
// entities as needed. Matching never fails: the worst case is a new
// duplicate identity, never a wrong merge. The only error returned is
// storage failure, which is fatal to the caller's cycle.
func (r *Resolver) Resolve(rawName string, rctx Context) (*models.CanonicalEntity, error) {
	norm := names.Normalize(rawName)
	if norm == "" {
		return nil, fmt.Errorf("resolver: name %q normalizes to empty", rawName)
	}

	l := r.lockFor(norm)
	l.Lock()
	defer l.Unlock()

	now := time.Now()

	// Exact alias hit.
	entityID, err := r.store.GetAlias(norm)
	if err == nil {
		return r.touch(entityID, rctx.Team, now)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("alias lookup for %q: %w", norm, err)
	}

	// The normalized name may itself be a canonical ID.
	if _, err := r.store.GetEntity(norm); err == nil {
		return r.touch(norm, rctx.Team, now)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("entity lookup for %q: %w", norm, err)
	}

	// Unseen variant: try fuzzy matching against known canonical names.
	candidate, err := r.fuzzyCandidate(norm, rctx)
	if err != nil {
		return nil, err
	}
	if candidate != nil {
		if err := r.store.AddAlias(norm, candidate.ID); err != nil {
			return nil, fmt.Errorf("adding alias %q -> %q: %w", norm, candidate.ID, err)
		}
		logger.Info("Aliased new variant %q to entity %q", norm, candidate.ID)
		return r.touch(candidate.ID, rctx.Team, now)
	}

	// No safe match: create a brand-new entity. A duplicate identity is
	// recoverable via the maintenance flow; a wrong merge is not.
	entity := &models.CanonicalEntity{
		ID:              norm,
		DisplayName:     strings.TrimSpace(rawName),
		Teams:           map[string]struct{}{},
		FirstSeen:       now,
		LastSeen:        now,
		OccurrenceCount: 1,
	}
	if rctx.Team != "" {
		entity.Teams[rctx.Team] = struct{}{}
	}
	if err := r.store.CreateEntity(entity); err != nil {
		return nil, fmt.Errorf("creating entity %q: %w", norm, err)
	}
	logger.Debug("Created new entity %q (team=%q, fixture=%q)", norm, rctx.Team, rctx.FixtureID)
	return entity, nil
}

func (r *Resolver) touch(entityID, team string, now time.Time) (*models.CanonicalEntity, error) {
	if err := r.store.RecordSighting(entityID, team, now); err != nil {
		return nil, fmt.Errorf("recording sighting of %q: %w", entityID, err)
	}
	e, err := r.store.GetEntity(entityID)
	if err != nil {
		return nil, fmt.Errorf("loading entity %q: %w", entityID, err)
	}
	return e, nil
}

// fuzzyCandidate returns the single safe fuzzy match for norm, or nil
// when there is none (no match, ambiguity, or conflict-guard block).
func (r *Resolver) fuzzyCandidate(norm string, rctx Context) (*models.CanonicalEntity, error) {
	tokens := names.Tokens(norm)
	if len(tokens) == 0 {
		return nil, nil
	}

	entities, err := r.store.ListEntities()
	if err != nil {
		return nil, fmt.Errorf("listing entities for fuzzy match: %w", err)
	}

	var (
		best       *models.CanonicalEntity
		bestShared int
		bestRatio  float64
		tied       bool
	)
	for _, e := range entities {
		shared, union := tokenOverlap(tokens, names.Tokens(e.ID))
		if union == 0 {
			continue
		}
		ratio := float64(shared) / float64(union)
		// Two shared tokens are decisive; a 50% overlap is accepted only
		// for very short names, guarding against a single common token
		// (e.g. a shared first name) causing a merge.
		matched := shared >= 2 || (union >= 2 && union <= 3 && ratio >= 0.5)
		if !matched {
			continue
		}
		switch {
		case best == nil, shared > bestShared, shared == bestShared && ratio > bestRatio:
			best, bestShared, bestRatio, tied = e, shared, ratio, false
		case shared == bestShared && ratio == bestRatio:
			tied = true
		}
	}
	if best == nil {
		return nil, nil
	}
	if tied {
		// Ambiguous: favor a false negative over a guessed merge.
		logger.Warn("Ambiguous fuzzy match for %q; creating new entity instead", norm)
		return nil, nil
	}
	if rctx.Team != "" && len(best.Teams) > 0 && !best.HasTeam(rctx.Team) {
		// Conflict guard: the candidate has team history that does not
		// include the sighting's team. Hard block.
		logger.Info("Merge of %q into %q blocked by team conflict (team=%q)", norm, best.ID, rctx.Team)
		return nil, nil
	}
	return best, nil
}

func tokenOverlap(a, b []string) (shared, union int) {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = false
	}
	for _, t := range b {
		if _, ok := set[t]; ok {
			if !set[t] {
				set[t] = true
				shared++
			}
		} else {
			set[t] = false
		}
	}
	return shared, len(set)
}

// SuggestMerges scans all canonical entities and proposes likely
// duplicates scoring at or above threshold. Pairs already skipped and
// pairs blocked by the conflict guard are excluded. This is an offline
// maintenance operation, never part of the poll path.
func (r *Resolver) SuggestMerges(threshold float64) ([]models.MergeSuggestion, error) {
	entities, err := r.store.ListEntities()
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	var suggestions []models.MergeSuggestion
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			if models.TeamsConflict(a, b) {
				continue
			}
			skipped, err := r.store.IsPairSkipped(a.ID, b.ID)
			if err != nil {
				return nil, fmt.Errorf("checking skipped pair: %w", err)
			}
			if skipped {
				continue
			}
			score, matching := matchScore(a.ID, b.ID)
			if score >= threshold {
				suggestions = append(suggestions, models.MergeSuggestion{
					EntityA:        a.ID,
					EntityB:        b.ID,
					Score:          score,
					MatchingTokens: matching,
				})
			}
		}
	}
	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}

// matchScore scores two normalized names by token overlap with floors
// for strong signals: two shared tokens, or an identical surname.
func matchScore(a, b string) (float64, []string) {
	ta, tb := names.Tokens(a), names.Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}

	var matching []string
	seen := make(map[string]bool, len(ta))
	for _, t := range ta {
		seen[t] = true
	}
	union := len(seen)
	for _, t := range tb {
		if seen[t] {
			matching = append(matching, t)
			seen[t] = false // count each shared token once
		} else if _, ok := seen[t]; !ok {
			seen[t] = false
			union++
		}
	}
	sort.Strings(matching)

	score := float64(len(matching)) / float64(union)
	if len(matching) >= 2 {
		score = max(score, 0.85)
	}
	fa, fb := strings.Fields(a), strings.Fields(b)
	lastA, lastB := fa[len(fa)-1], fb[len(fb)-1]
	if lastA == lastB && len([]rune(lastA)) > 2 {
		score = max(score, 0.80)
	}
	return score, matching
}

// ConfirmMerge folds variantEntity into intoEntity: every alias of the
// variant is re-pointed, the variant's own ID becomes an alias, and its
// sighting stats are merged. Idempotent; blocked by the conflict guard.
func (r *Resolver) ConfirmMerge(variantEntityID, intoEntityID string) error {
	variantID := names.Normalize(variantEntityID)
	intoID := names.Normalize(intoEntityID)
	if variantID == intoID {
		return nil
	}

	into, err := r.store.GetEntity(intoID)
	if err != nil {
		return fmt.Errorf("loading target entity %q: %w", intoID, err)
	}
	variant, err := r.store.GetEntity(variantID)
	if errors.Is(err, storage.ErrNotFound) {
		// Already merged: just make sure the alias exists.
		return r.store.AddAlias(variantID, intoID)
	}
	if err != nil {
		return fmt.Errorf("loading variant entity %q: %w", variantID, err)
	}
	if models.TeamsConflict(variant, into) {
		return fmt.Errorf("%w: %q vs %q", ErrConflictingTeams, variantID, intoID)
	}

	variants, err := r.store.AliasesFor(variantID)
	if err != nil {
		return fmt.Errorf("listing aliases of %q: %w", variantID, err)
	}
	for _, v := range variants {
		if err := r.store.ReassignAlias(v, intoID); err != nil {
			return fmt.Errorf("re-pointing alias %q: %w", v, err)
		}
	}
	if err := r.store.MergeEntityStats(variantID, intoID); err != nil {
		return fmt.Errorf("merging stats of %q into %q: %w", variantID, intoID, err)
	}
	if err := r.store.AddAlias(variantID, intoID); err != nil {
		return fmt.Errorf("aliasing %q to %q: %w", variantID, intoID, err)
	}
	logger.Info("Merged entity %q into %q (%d aliases moved)", variantID, intoID, len(variants))
	return nil
}

// SkipPair records that two names must never be suggested as a merge
// again. Idempotent.
func (r *Resolver) SkipPair(a, b string) error {
	na, nb := names.PairKey(names.Normalize(a), names.Normalize(b))
	return r.store.AddSkippedPair(na, nb)
}
