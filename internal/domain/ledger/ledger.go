// Package ledger contains the per-actor experience ledger, its immutable
// snapshots and the persistence contract used to load and save it.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// Ledger is the concurrent mapping of skill id to accumulated experience for
// one actor. Other components read it only through Snapshot.
type Ledger struct {
	actor shared.ActorID

	mu           sync.RWMutex
	xp           map[shared.SkillID]shared.XP
	dirty        bool
	version      uint64
	lastModified time.Time

	now func() time.Time
}

// New creates an empty, clean ledger.
func New(actor shared.ActorID) *Ledger {
	return &Ledger{
		actor: actor,
		xp:    make(map[shared.SkillID]shared.XP),
		now:   time.Now,
	}
}

// FromContents rebuilds a clean ledger from persisted contents.
// Negative persisted values are rejected rather than clamped.
func FromContents(actor shared.ActorID, c Contents) (*Ledger, error) {
	l := New(actor)
	for id, xp := range c.Entries {
		if err := validate(id, xp); err != nil {
			return nil, err
		}
		l.xp[id] = xp
	}
	l.lastModified = c.LastModified
	return l, nil
}

func validate(id shared.SkillID, amount shared.XP) error {
	if id.IsEmpty() {
		return shared.Detail(shared.ErrInvalidSkillID, "empty skill id")
	}
	if !amount.IsValid() {
		return shared.Detail(shared.ErrNegativeXP, "%s: %d", id, amount)
	}
	return nil
}

// Actor returns the owning actor id.
func (l *Ledger) Actor() shared.ActorID { return l.actor }

// Get returns the accumulated experience for a skill, 0 when absent.
func (l *Ledger) Get(id shared.SkillID) shared.XP {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.xp[id]
}

// Add merges amount into the skill's experience and returns the new total.
// A grant that would overflow the total is rejected and changes nothing.
func (l *Ledger) Add(id shared.SkillID, amount shared.XP) (shared.XP, error) {
	if err := validate(id, amount); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.xp[id]
	if !current.CanAdd(amount) {
		return current, shared.Detail(shared.ErrXPOverflow, "%s has %d, grant of %d", id, current, amount)
	}
	total := current + amount
	l.xp[id] = total
	l.touch()
	return total, nil
}

// Set overwrites the skill's experience and returns the previous value.
// This is the administrative path and may decrease experience.
func (l *Ledger) Set(id shared.SkillID, amount shared.XP) (shared.XP, error) {
	if err := validate(id, amount); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.xp[id]
	l.xp[id] = amount
	l.touch()
	return prev, nil
}

// touch records a mutation. Caller holds the write lock.
func (l *Ledger) touch() {
	l.dirty = true
	l.version++
	l.lastModified = l.now()
}

// Snapshot returns an immutable point-in-time copy of the ledger.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make(map[shared.SkillID]shared.XP, len(l.xp))
	for id, xp := range l.xp {
		entries[id] = xp
	}
	return Snapshot{
		actor:        l.actor,
		entries:      entries,
		version:      l.version,
		lastModified: l.lastModified,
	}
}

// MarkClean clears the dirty flag. Called by the persistence collaborator
// right after a durable write succeeded.
func (l *Ledger) MarkClean() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirty = false
}

// MarkCleanIfUnchanged clears the dirty flag only if no mutation happened since
// the snapshot with the given version was taken. It reports whether the flag
// was cleared; a false result means a later grant still needs saving.
func (l *Ledger) MarkCleanIfUnchanged(version uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.version != version {
		return false
	}
	l.dirty = false
	return true
}

// IsDirty reports whether the ledger has unsaved mutations.
func (l *Ledger) IsDirty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dirty
}

// LastModified returns the time of the last mutation.
func (l *Ledger) LastModified() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastModified
}

// Version returns the mutation counter.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Len returns the number of skills with an entry.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.xp)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one skill/experience pair.
type Entry struct {
	SkillID shared.SkillID
	XP      shared.XP
}

// Snapshot is an immutable copy of a ledger at one point in time.
type Snapshot struct {
	actor        shared.ActorID
	entries      map[shared.SkillID]shared.XP
	version      uint64
	lastModified time.Time
}

// NewSnapshot builds a snapshot from raw entries. Used by simulations and tests.
func NewSnapshot(actor shared.ActorID, entries map[shared.SkillID]shared.XP) Snapshot {
	cp := make(map[shared.SkillID]shared.XP, len(entries))
	for id, xp := range entries {
		cp[id] = xp
	}
	return Snapshot{actor: actor, entries: cp}
}

// Actor returns the actor the snapshot belongs to.
func (s Snapshot) Actor() shared.ActorID { return s.actor }

// Version returns the ledger version at snapshot time.
func (s Snapshot) Version() uint64 { return s.version }

// LastModified returns the ledger's last-modified time at snapshot time.
func (s Snapshot) LastModified() time.Time { return s.lastModified }

// Get returns the experience for a skill, 0 when absent.
func (s Snapshot) Get(id shared.SkillID) shared.XP { return s.entries[id] }

// Len returns the number of entries.
func (s Snapshot) Len() int { return len(s.entries) }

// Total returns the sum of all experience, saturating at the largest XP.
func (s Snapshot) Total() shared.XP {
	var total shared.XP
	for _, xp := range s.entries {
		total = total.SaturatingAdd(xp)
	}
	return total
}

// Entries returns all entries sorted by skill id, so iteration is deterministic.
func (s Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for id, xp := range s.entries {
		out = append(out, Entry{SkillID: id, XP: xp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out
}

// Contents converts the snapshot into the persistence representation.
func (s Snapshot) Contents() Contents {
	entries := make(map[shared.SkillID]shared.XP, len(s.entries))
	for id, xp := range s.entries {
		entries[id] = xp
	}
	return Contents{Entries: entries, LastModified: s.lastModified}
}
