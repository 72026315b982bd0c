package shared

import (
	"math"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ActorID identifies a participant whose experience is tracked.
type ActorID string

// Actor IDs are opaque to the engine but must be printable tokens.
var actorIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@-]{0,127}$`)

// IsValid checks if the actor ID is a non-empty printable token.
func (a ActorID) IsValid() bool {
	return actorIDRegex.MatchString(string(a))
}

// String returns the string representation.
func (a ActorID) String() string {
	return string(a)
}

// IsEmpty returns true if the ID is empty.
func (a ActorID) IsEmpty() bool {
	return a == ""
}

// NewActorID creates a new ActorID with validation.
func NewActorID(id string) (ActorID, error) {
	aid := ActorID(strings.TrimSpace(id))
	if !aid.IsValid() {
		return "", Detail(ErrInvalidActorID, "%q", id)
	}
	return aid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// SkillID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// SkillID is a dot-delimited hierarchical path, e.g. "farming.crops.wheat".
type SkillID string

// SkillSeparator separates path segments in a SkillID.
const SkillSeparator = "."

// Authored ids are lowercase segments joined by dots.
var skillIDRegex = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// IsValid checks if the id is a well-formed authored skill path.
func (s SkillID) IsValid() bool {
	return len(s) <= 256 && skillIDRegex.MatchString(string(s))
}

// String returns the string representation.
func (s SkillID) String() string {
	return string(s)
}

// IsEmpty returns true if the ID is empty.
func (s SkillID) IsEmpty() bool {
	return s == ""
}

// Segments splits the path into its segments.
func (s SkillID) Segments() []string {
	if s == "" {
		return nil
	}
	return strings.Split(string(s), SkillSeparator)
}

// SegmentCount returns the number of path segments.
func (s SkillID) SegmentCount() int {
	if s == "" {
		return 0
	}
	return strings.Count(string(s), SkillSeparator) + 1
}

// Head returns the first path segment.
func (s SkillID) Head() string {
	head, _, _ := strings.Cut(string(s), SkillSeparator)
	return head
}

// Prefix returns the id made of the first n segments.
// It returns the whole id when n exceeds the segment count and "" when n <= 0.
func (s SkillID) Prefix(n int) SkillID {
	if n <= 0 {
		return ""
	}
	segs := s.Segments()
	if n >= len(segs) {
		return s
	}
	return SkillID(strings.Join(segs[:n], SkillSeparator))
}

// Parent returns the id with the last segment removed, or "" for a single segment.
func (s SkillID) Parent() SkillID {
	i := strings.LastIndex(string(s), SkillSeparator)
	if i < 0 {
		return ""
	}
	return s[:i]
}

// Child appends a segment to the id.
func (s SkillID) Child(segment string) SkillID {
	if s == "" {
		return SkillID(segment)
	}
	return SkillID(string(s) + SkillSeparator + segment)
}

// SharedPrefix returns the leading segments both ids have in common.
func (s SkillID) SharedPrefix(other SkillID) SkillID {
	a, b := s.Segments(), other.Segments()
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return SkillID(strings.Join(a[:n], SkillSeparator))
}

// NewSkillID creates a new SkillID with validation.
func NewSkillID(id string) (SkillID, error) {
	sid := SkillID(strings.TrimSpace(id))
	if !sid.IsValid() {
		return "", Detail(ErrInvalidSkillID, "%q", id)
	}
	return sid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ═══════════════════════════════════════════════════════════════════════════

// XP is an amount of accumulated experience.
type XP int64

// IsValid checks if the XP value is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Int64 returns the underlying value.
func (x XP) Int64() int64 {
	return int64(x)
}

// Float returns the value as float64 for ratio math.
func (x XP) Float() float64 {
	return float64(x)
}

// CanAdd reports whether x+y fits in an XP. Both are expected non-negative.
func (x XP) CanAdd(y XP) bool {
	return y <= math.MaxInt64-x
}

// SaturatingAdd returns x+y, pinned at math.MaxInt64 instead of wrapping.
func (x XP) SaturatingAdd(y XP) XP {
	if !x.CanAdd(y) {
		return math.MaxInt64
	}
	return x + y
}

// NewXP creates a new XP value with validation. Negative amounts are rejected, never clamped.
func NewXP(amount int64) (XP, error) {
	if amount < 0 {
		return 0, Detail(ErrNegativeXP, "got %d", amount)
	}
	return XP(amount), nil
}
