package query

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE XP QUERY
// Сводит опыт навыка, который встречается в нескольких деревьях, в одно
// значение EffectiveXP с учётом весов деревьев игрока.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateXPQuery содержит параметры агрегации.
type AggregateXPQuery struct {
	ActorID string
	SkillID string

	// Honorary - почётный опыт по именам деревьев (опционально).
	Honorary map[string]int64

	// ApplyMultipliers - умножить собственный опыт на штраф и бонус навыка.
	ApplyMultipliers bool
}

// Validate проверяет корректность параметров запроса.
func (q AggregateXPQuery) Validate() error {
	if q.ActorID == "" {
		return errors.New("actor_id is required")
	}
	if q.SkillID == "" {
		return errors.New("skill_id is required")
	}
	for tree, v := range q.Honorary {
		if v < 0 {
			return shared.Detail(shared.ErrNegativeXP, "honorary xp for tree %q", tree)
		}
	}
	return nil
}

// EffectiveXPDTO - значение EffectiveXP.
type EffectiveXPDTO struct {
	Intrinsic int64   `json:"intrinsic"`
	Honorary  int64   `json:"honorary"`
	Total     int64   `json:"total"`
	Capacity  int64   `json:"capacity"`
	Progress  float64 `json:"progress"`
}

func newEffectiveXPDTO(e progression.EffectiveXP) EffectiveXPDTO {
	return EffectiveXPDTO{
		Intrinsic: e.Intrinsic().Int64(),
		Honorary:  e.Honorary().Int64(),
		Total:     e.Total().Int64(),
		Capacity:  e.Capacity().Int64(),
		Progress:  e.ProgressPercent(),
	}
}

// TreeXPDTO - значение в одном дереве.
type TreeXPDTO struct {
	Tree   string         `json:"tree"`
	Weight float64        `json:"weight"`
	Value  EffectiveXPDTO `json:"value"`
}

// AggregatedXPDTO - результат агрегации.
type AggregatedXPDTO struct {
	ActorID string `json:"actor_id"`
	SkillID string `json:"skill_id"`

	// PerTree - значения по деревьям в порядке имён.
	PerTree []TreeXPDTO `json:"per_tree"`

	// Effective - итоговое значение. Нулевое, если навык не найден ни в одном дереве.
	Effective EffectiveXPDTO `json:"effective"`
}

// AggregateXPHandler обрабатывает запрос агрегации.
type AggregateXPHandler struct {
	book       *ledger.Book
	registry   *skilltree.Registry
	analyzer   *progression.Analyzer
	aggregator *progression.Aggregator
}

// NewAggregateXPHandler создаёт новый обработчик.
func NewAggregateXPHandler(
	book *ledger.Book,
	registry *skilltree.Registry,
	analyzer *progression.Analyzer,
	aggregator *progression.Aggregator,
) *AggregateXPHandler {
	return &AggregateXPHandler{
		book:       book,
		registry:   registry,
		analyzer:   analyzer,
		aggregator: aggregator,
	}
}

// Handle выполняет запрос.
func (h *AggregateXPHandler) Handle(ctx context.Context, q AggregateXPQuery) (*AggregatedXPDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("aggregate_xp: %w: %w", shared.ErrValidation, err)
	}
	skill, err := shared.NewSkillID(q.SkillID)
	if err != nil {
		return nil, fmt.Errorf("aggregate_xp: %w", err)
	}
	snap, err := loadSnapshot(ctx, h.book, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("aggregate_xp: %w", err)
	}

	var analysis progression.Analysis
	if q.ApplyMultipliers {
		analysis = h.analyzer.Analyze(snap)
	}

	actor := snap.Actor()
	perTree := make(map[string]progression.EffectiveXP)
	dto := &AggregatedXPDTO{ActorID: actor.String(), SkillID: skill.String()}

	for _, node := range h.registry.ResolveAll(skill) {
		intrinsic := snap.Get(skill)
		if q.ApplyMultipliers {
			metrics, ok := analysis.GroupOf(skill)
			if !ok {
				metrics = analysis.Groups[progression.DefaultGroupKey(skill)]
			}
			m := h.analyzer.Multipliers(node, snap, metrics)
			intrinsic = shared.XP(math.Round(intrinsic.Float() * m.Penalty * m.Bonus))
		}
		v, err := progression.NewEffectiveXP(intrinsic, shared.XP(q.Honorary[node.TreeName()]), node.Capacity())
		if err != nil {
			return nil, fmt.Errorf("aggregate_xp: %w", err)
		}
		perTree[node.TreeName()] = v

		dto.PerTree = append(dto.PerTree, TreeXPDTO{
			Tree:   node.TreeName(),
			Weight: h.aggregator.WeightOf(actor, node.TreeName()),
			Value:  newEffectiveXPDTO(v),
		})
	}

	dto.Effective = newEffectiveXPDTO(h.aggregator.Aggregate(actor, perTree))
	return dto, nil
}
