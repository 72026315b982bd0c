package shared

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Events are diagnostic and integration signals only;
// no domain invariant depends on a subscriber receiving them.
const (
	// Progression events
	EventXPGranted        EventType = "progression.xp_granted"
	EventXPSet            EventType = "progression.xp_set"
	EventActorReset       EventType = "progression.actor_reset"
	EventClusterFormed    EventType = "progression.cluster_formed"
	EventHyperBonus       EventType = "progression.hyper_bonus"
	EventWeightsRefreshed EventType = "progression.weights_refreshed"

	// Taxonomy events
	EventTaxonomyReloaded EventType = "taxonomy.reloaded"

	// Persistence events
	EventLedgerFlushed     EventType = "ledger.flushed"
	EventLedgerFlushFailed EventType = "ledger.flush_failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns the unique identifier of this event instance.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGrantedEvent is emitted when experience is added to an actor's ledger.
type XPGrantedEvent struct {
	BaseEvent
	ActorID ActorID `json:"actor_id"`
	SkillID SkillID `json:"skill_id"`
	Amount  XP      `json:"amount"`
	Total   XP      `json:"total"`
}

// Payload implements Event interface.
func (e XPGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id": e.ActorID.String(),
		"skill_id": e.SkillID.String(),
		"amount":   e.Amount.Int64(),
		"total":    e.Total.Int64(),
	}
}

// NewXPGrantedEvent creates a new XPGrantedEvent.
func NewXPGrantedEvent(actor ActorID, skill SkillID, amount, total XP) XPGrantedEvent {
	return XPGrantedEvent{
		BaseEvent: NewBaseEvent(EventXPGranted, actor.String()),
		ActorID:   actor,
		SkillID:   skill,
		Amount:    amount,
		Total:     total,
	}
}

// XPSetEvent is emitted when an administrator overwrites a ledger entry.
type XPSetEvent struct {
	BaseEvent
	ActorID  ActorID `json:"actor_id"`
	SkillID  SkillID `json:"skill_id"`
	Previous XP      `json:"previous"`
	Current  XP      `json:"current"`
}

// Payload implements Event interface.
func (e XPSetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id": e.ActorID.String(),
		"skill_id": e.SkillID.String(),
		"previous": e.Previous.Int64(),
		"current":  e.Current.Int64(),
	}
}

// NewXPSetEvent creates a new XPSetEvent.
func NewXPSetEvent(actor ActorID, skill SkillID, previous, current XP) XPSetEvent {
	return XPSetEvent{
		BaseEvent: NewBaseEvent(EventXPSet, actor.String()),
		ActorID:   actor,
		SkillID:   skill,
		Previous:  previous,
		Current:   current,
	}
}

// ActorResetEvent is emitted when all of an actor's progression data is dropped.
type ActorResetEvent struct {
	BaseEvent
	ActorID       ActorID `json:"actor_id"`
	SkillsDropped int     `json:"skills_dropped"`
}

// Payload implements Event interface.
func (e ActorResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":       e.ActorID.String(),
		"skills_dropped": e.SkillsDropped,
	}
}

// NewActorResetEvent creates a new ActorResetEvent.
func NewActorResetEvent(actor ActorID, skillsDropped int) ActorResetEvent {
	return ActorResetEvent{
		BaseEvent:     NewBaseEvent(EventActorReset, actor.String()),
		ActorID:       actor,
		SkillsDropped: skillsDropped,
	}
}

// ClusterFormedEvent is emitted when overflowing skills of an actor form an emergent cluster.
type ClusterFormedEvent struct {
	BaseEvent
	ActorID           ActorID   `json:"actor_id"`
	ClusterKey        string    `json:"cluster_key"`
	Members           []SkillID `json:"members"`
	AverageSimilarity float64   `json:"average_similarity"`
}

// Payload implements Event interface.
func (e ClusterFormedEvent) Payload() map[string]interface{} {
	members := make([]string, len(e.Members))
	for i, m := range e.Members {
		members[i] = m.String()
	}
	return map[string]interface{}{
		"actor_id":           e.ActorID.String(),
		"cluster_key":        e.ClusterKey,
		"members":            members,
		"average_similarity": e.AverageSimilarity,
	}
}

// NewClusterFormedEvent creates a new ClusterFormedEvent.
func NewClusterFormedEvent(actor ActorID, key string, members []SkillID, avgSimilarity float64) ClusterFormedEvent {
	return ClusterFormedEvent{
		BaseEvent:         NewBaseEvent(EventClusterFormed, actor.String()),
		ActorID:           actor,
		ClusterKey:        key,
		Members:           append([]SkillID(nil), members...),
		AverageSimilarity: avgSimilarity,
	}
}

// HyperBonusEvent is emitted when a skill earns a large hyper-specialization bonus.
type HyperBonusEvent struct {
	BaseEvent
	ActorID    ActorID `json:"actor_id"`
	SkillID    SkillID `json:"skill_id"`
	Depth      int     `json:"depth"`
	XPRatio    float64 `json:"xp_ratio"`
	HyperBonus float64 `json:"hyper_bonus"`
}

// Payload implements Event interface.
func (e HyperBonusEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":    e.ActorID.String(),
		"skill_id":    e.SkillID.String(),
		"depth":       e.Depth,
		"xp_ratio":    e.XPRatio,
		"hyper_bonus": e.HyperBonus,
	}
}

// NewHyperBonusEvent creates a new HyperBonusEvent.
func NewHyperBonusEvent(actor ActorID, skill SkillID, depth int, ratio, bonus float64) HyperBonusEvent {
	return HyperBonusEvent{
		BaseEvent:  NewBaseEvent(EventHyperBonus, actor.String()),
		ActorID:    actor,
		SkillID:    skill,
		Depth:      depth,
		XPRatio:    ratio,
		HyperBonus: bonus,
	}
}

// WeightsRefreshedEvent is emitted after per-actor tree weights are recomputed.
type WeightsRefreshedEvent struct {
	BaseEvent
	ActorID       ActorID            `json:"actor_id"`
	Weights       map[string]float64 `json:"weights"`
	TotalActivity float64            `json:"total_activity"`
}

// Payload implements Event interface.
func (e WeightsRefreshedEvent) Payload() map[string]interface{} {
	weights := make(map[string]interface{}, len(e.Weights))
	for k, v := range e.Weights {
		weights[k] = v
	}
	return map[string]interface{}{
		"actor_id":       e.ActorID.String(),
		"weights":        weights,
		"total_activity": e.TotalActivity,
	}
}

// NewWeightsRefreshedEvent creates a new WeightsRefreshedEvent.
func NewWeightsRefreshedEvent(actor ActorID, weights map[string]float64, totalActivity float64) WeightsRefreshedEvent {
	cp := make(map[string]float64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	return WeightsRefreshedEvent{
		BaseEvent:     NewBaseEvent(EventWeightsRefreshed, actor.String()),
		ActorID:       actor,
		Weights:       cp,
		TotalActivity: totalActivity,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Taxonomy Events
// ═══════════════════════════════════════════════════════════════════════════

// TaxonomyAggregateID is the aggregate id used for registry-wide events.
const TaxonomyAggregateID = "taxonomy"

// TaxonomyReloadedEvent is emitted when the registry tree set is swapped.
type TaxonomyReloadedEvent struct {
	BaseEvent
	Digest string   `json:"digest"`
	Trees  []string `json:"trees"`
	Nodes  int      `json:"nodes"`
}

// Payload implements Event interface.
func (e TaxonomyReloadedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"digest": e.Digest,
		"trees":  append([]string(nil), e.Trees...),
		"nodes":  e.Nodes,
	}
}

// NewTaxonomyReloadedEvent creates a new TaxonomyReloadedEvent.
func NewTaxonomyReloadedEvent(digest string, trees []string, nodes int) TaxonomyReloadedEvent {
	return TaxonomyReloadedEvent{
		BaseEvent: NewBaseEvent(EventTaxonomyReloaded, TaxonomyAggregateID),
		Digest:    digest,
		Trees:     append([]string(nil), trees...),
		Nodes:     nodes,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Persistence Events
// ═══════════════════════════════════════════════════════════════════════════

// LedgerFlushedEvent is emitted after a ledger was durably saved.
type LedgerFlushedEvent struct {
	BaseEvent
	ActorID ActorID `json:"actor_id"`
	Version uint64  `json:"version"`
	Skills  int     `json:"skills"`
}

// Payload implements Event interface.
func (e LedgerFlushedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id": e.ActorID.String(),
		"version":  e.Version,
		"skills":   e.Skills,
	}
}

// NewLedgerFlushedEvent creates a new LedgerFlushedEvent.
func NewLedgerFlushedEvent(actor ActorID, version uint64, skills int) LedgerFlushedEvent {
	return LedgerFlushedEvent{
		BaseEvent: NewBaseEvent(EventLedgerFlushed, actor.String()),
		ActorID:   actor,
		Version:   version,
		Skills:    skills,
	}
}

// LedgerFlushFailedEvent is emitted when saving a ledger fails. The ledger stays dirty.
type LedgerFlushFailedEvent struct {
	BaseEvent
	ActorID ActorID `json:"actor_id"`
	Error   string  `json:"error"`
}

// Payload implements Event interface.
func (e LedgerFlushFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id": e.ActorID.String(),
		"error":    e.Error,
	}
}

// NewLedgerFlushFailedEvent creates a new LedgerFlushFailedEvent.
func NewLedgerFlushFailedEvent(actor ActorID, err error) LedgerFlushFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return LedgerFlushFailedEvent{
		BaseEvent: NewBaseEvent(EventLedgerFlushFailed, actor.String()),
		ActorID:   actor,
		Error:     msg,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event's payload into an envelope.
func NewEventEnvelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          event.EventID(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Payload:     payload,
	}
	if c, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = c.Correlation()
	}
	return env, nil
}

// Correlation returns the correlation id, if any.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// ═══════════════════════════════════════════════════════════════════════════
// Publisher Helpers
// ═══════════════════════════════════════════════════════════════════════════

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }

// EventRecorder is a publisher that keeps every event in memory.
// Useful as the observability sink in tests and simulations.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewEventRecorder creates an empty EventRecorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Publish implements EventPublisher.
func (r *EventRecorder) Publish(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of all recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of the given type, in publish order.
func (r *EventRecorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// PublishSafe publishes to p when non-nil, swallowing the error.
// Domain code uses it for diagnostics that must never fail an operation.
func PublishSafe(p EventPublisher, event Event) {
	if p == nil {
		return
	}
	_ = p.Publish(event)
}
