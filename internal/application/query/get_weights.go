package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET WEIGHTS QUERY
// Возвращает веса деревьев игрока из кэша агрегатора.
// Пока веса не посчитаны, все деревья весят одинаково (1.0).
// ══════════════════════════════════════════════════════════════════════════════

// GetWeightsQuery содержит параметры запроса весов.
type GetWeightsQuery struct {
	ActorID string
}

// Validate проверяет корректность параметров запроса.
func (q GetWeightsQuery) Validate() error {
	if q.ActorID == "" {
		return errors.New("actor_id is required")
	}
	return nil
}

// TreeWeightDTO - вес одного дерева.
type TreeWeightDTO struct {
	Tree   string  `json:"tree"`
	Weight float64 `json:"weight"`
}

// WeightsDTO - веса деревьев игрока.
type WeightsDTO struct {
	ActorID string `json:"actor_id"`

	// Computed - веса посчитаны по активности, а не взяты по умолчанию.
	Computed bool `json:"computed"`

	// Trees - веса, отсортированные по имени дерева.
	Trees []TreeWeightDTO `json:"trees"`
}

// Map returns the weights keyed by tree name.
func (d *WeightsDTO) Map() progression.Weights {
	w := make(progression.Weights, len(d.Trees))
	for _, t := range d.Trees {
		w[t.Tree] = t.Weight
	}
	return w
}

// GetWeightsHandler обрабатывает запрос весов.
type GetWeightsHandler struct {
	aggregator *progression.Aggregator
}

// NewGetWeightsHandler создаёт новый обработчик.
func NewGetWeightsHandler(aggregator *progression.Aggregator) *GetWeightsHandler {
	return &GetWeightsHandler{aggregator: aggregator}
}

// Handle выполняет запрос.
func (h *GetWeightsHandler) Handle(_ context.Context, q GetWeightsQuery) (*WeightsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_weights: %w: %w", shared.ErrValidation, err)
	}
	actor, err := shared.NewActorID(q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("get_weights: %w", err)
	}
	return newWeightsDTO(actor, h.aggregator.GetWeights(actor), h.aggregator.HasWeights(actor)), nil
}

func newWeightsDTO(actor shared.ActorID, w progression.Weights, computed bool) *WeightsDTO {
	dto := &WeightsDTO{
		ActorID:  actor.String(),
		Computed: computed,
		Trees:    make([]TreeWeightDTO, 0, len(w)),
	}
	for tree, weight := range w {
		dto.Trees = append(dto.Trees, TreeWeightDTO{Tree: tree, Weight: weight})
	}
	sort.Slice(dto.Trees, func(i, j int) bool { return dto.Trees[i].Tree < dto.Trees[j].Tree })
	return dto
}
