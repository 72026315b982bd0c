// Package projections holds in-process read models. ProgressionView is the
// default progression projection when no Redis is configured, and adds a
// per-group specialist ranking on top of the plain key lookup.
package projections

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION VIEW
// ══════════════════════════════════════════════════════════════════════════════

// SpecialistEntry is one actor's standing within a specialization group.
type SpecialistEntry struct {
	Rank    int       `json:"rank"`
	Actor   string    `json:"actor_id"`
	Score   float64   `json:"score"`
	Depth   int       `json:"max_depth"`
	TotalXP shared.XP `json:"total_xp"`
}

// ViewMetadata holds aggregate statistics about the view.
type ViewMetadata struct {
	Actors      int       `json:"actors"`
	Groups      int       `json:"groups"`
	Clusters    int       `json:"clusters"`
	LastUpdated time.Time `json:"last_updated"`
	Version     int64     `json:"version"`
}

// ProgressionView implements progression.Projection in memory.
type ProgressionView struct {
	mu sync.RWMutex

	states map[shared.ActorID]progression.ProjectedState

	// byGroup is rebuilt lazily; nil means stale.
	byGroup map[string][]*SpecialistEntry

	lastUpdated time.Time
	version     int64
}

// NewProgressionView creates an empty view.
func NewProgressionView() *ProgressionView {
	return &ProgressionView{
		states: make(map[shared.ActorID]progression.ProjectedState),
	}
}

var _ progression.Projection = (*ProgressionView)(nil)

// Save replaces the projected state of an actor. A state older than the one
// held is ignored, so a slow sweep cannot roll the view back.
func (v *ProgressionView) Save(_ context.Context, state progression.ProjectedState) error {
	if state.Actor.IsEmpty() {
		return shared.ErrInvalidActorID
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if cur, ok := v.states[state.Actor]; ok && state.Version < cur.Version {
		return nil
	}
	v.states[state.Actor] = copyState(state)
	v.touch()
	return nil
}

// Get returns the projected state of an actor.
func (v *ProgressionView) Get(_ context.Context, actor shared.ActorID) (progression.ProjectedState, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	state, ok := v.states[actor]
	if !ok {
		return progression.ProjectedState{}, false, nil
	}
	return copyState(state), true, nil
}

// Delete drops the projected state of an actor.
func (v *ProgressionView) Delete(_ context.Context, actor shared.ActorID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.states[actor]; ok {
		delete(v.states, actor)
		v.touch()
	}
	return nil
}

func (v *ProgressionView) touch() {
	v.byGroup = nil
	v.lastUpdated = time.Now().UTC()
	v.version++
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKINGS
// ══════════════════════════════════════════════════════════════════════════════

// TopSpecialists returns the best-ranked actors of a group, most specialized
// first. A limit <= 0 returns every entry.
func (v *ProgressionView) TopSpecialists(group string, limit int) []SpecialistEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries := v.rankings()[group]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]SpecialistEntry, limit)
	for i := range out {
		out[i] = *entries[i]
	}
	return out
}

// Groups returns every group with at least one ranked actor, sorted.
func (v *ProgressionView) Groups() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	byGroup := v.rankings()
	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Metadata returns aggregate statistics.
func (v *ProgressionView) Metadata() ViewMetadata {
	v.mu.Lock()
	defer v.mu.Unlock()

	meta := ViewMetadata{
		Actors:      len(v.states),
		LastUpdated: v.lastUpdated,
		Version:     v.version,
	}
	for g := range v.rankings() {
		meta.Groups++
		if strings.HasPrefix(g, progression.ClusterKeyPrefix) {
			meta.Clusters++
		}
	}
	return meta
}

// rankings must be called with the write lock held.
func (v *ProgressionView) rankings() map[string][]*SpecialistEntry {
	if v.byGroup != nil {
		return v.byGroup
	}

	byGroup := make(map[string][]*SpecialistEntry)
	for actor, state := range v.states {
		for key, m := range state.Groups {
			byGroup[key] = append(byGroup[key], &SpecialistEntry{
				Actor:   actor.String(),
				Score:   m.Score,
				Depth:   m.MaxDepth,
				TotalXP: m.TotalXP,
			})
		}
	}
	for _, entries := range byGroup {
		rankEntries(entries)
	}
	v.byGroup = byGroup
	return byGroup
}

// rankEntries sorts by score, then xp, then actor, and assigns shared ranks
// to exact ties.
func rankEntries(entries []*SpecialistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalXP != b.TotalXP {
			return a.TotalXP > b.TotalXP
		}
		return a.Actor < b.Actor
	})

	for i, e := range entries {
		if i > 0 && e.Score == entries[i-1].Score && e.TotalXP == entries[i-1].TotalXP {
			e.Rank = entries[i-1].Rank
		} else {
			e.Rank = i + 1
		}
	}
}

func copyState(s progression.ProjectedState) progression.ProjectedState {
	groups := make(map[string]progression.SpecializationMetrics, len(s.Groups))
	for k, m := range s.Groups {
		groups[k] = m
	}
	s.Groups = groups
	s.Clusters = append([]progression.Cluster(nil), s.Clusters...)
	s.Weights = s.Weights.Clone()
	return s
}
