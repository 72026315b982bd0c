package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
	"github.com/alem-hub/skill-progression/internal/domain/skilltree"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MULTIPLIERS QUERY
// Возвращает штраф и бонус для навыка игрока вместе с разбором бонуса.
// Геймплейные системы применяют множители сами; движок только считает.
// ══════════════════════════════════════════════════════════════════════════════

// GetMultipliersQuery содержит параметры запроса множителей.
type GetMultipliersQuery struct {
	ActorID string
	SkillID string
}

// Validate проверяет корректность параметров запроса.
func (q GetMultipliersQuery) Validate() error {
	if q.ActorID == "" {
		return errors.New("actor_id is required")
	}
	if q.SkillID == "" {
		return errors.New("skill_id is required")
	}
	return nil
}

// MultipliersDTO - множители навыка.
type MultipliersDTO struct {
	ActorID string `json:"actor_id"`
	SkillID string `json:"skill_id"`

	// Found - навык найден в одном из деревьев (или синтезирован).
	// Если false, остальные поля нулевые.
	Found bool `json:"found"`

	// Dynamic - навык синтезирован из глубокого пути.
	Dynamic bool `json:"dynamic"`

	// ─────────────────────────────────────────────────────────────────────────
	// Вход
	// ─────────────────────────────────────────────────────────────────────────

	Tree           string  `json:"tree,omitempty"`
	GroupKey       string  `json:"group_key,omitempty"`
	Depth          int     `json:"depth"`
	XP             int64   `json:"xp"`
	Capacity       int64   `json:"capacity"`
	XPRatio        float64 `json:"xp_ratio"`
	Score          float64 `json:"score"`
	OnDominantPath bool    `json:"on_dominant_path"`

	// ─────────────────────────────────────────────────────────────────────────
	// Результат
	// ─────────────────────────────────────────────────────────────────────────

	Penalty float64           `json:"penalty"`
	Bonus   float64           `json:"bonus"`
	Parts   BonusBreakdownDTO `json:"parts"`
}

// BonusBreakdownDTO - составляющие бонуса.
type BonusBreakdownDTO struct {
	Base  float64 `json:"base"`
	Depth float64 `json:"depth"`
	Spec  float64 `json:"spec"`
	Hyper float64 `json:"hyper"`
}

// GetMultipliersHandler обрабатывает запрос множителей.
type GetMultipliersHandler struct {
	book     *ledger.Book
	registry *skilltree.Registry
	analyzer *progression.Analyzer
}

// NewGetMultipliersHandler создаёт новый обработчик.
func NewGetMultipliersHandler(book *ledger.Book, registry *skilltree.Registry, analyzer *progression.Analyzer) *GetMultipliersHandler {
	return &GetMultipliersHandler{book: book, registry: registry, analyzer: analyzer}
}

// Handle выполняет запрос.
func (h *GetMultipliersHandler) Handle(ctx context.Context, q GetMultipliersQuery) (*MultipliersDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_multipliers: %w: %w", shared.ErrValidation, err)
	}
	skill, err := shared.NewSkillID(q.SkillID)
	if err != nil {
		return nil, fmt.Errorf("get_multipliers: %w", err)
	}
	snap, err := loadSnapshot(ctx, h.book, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("get_multipliers: %w", err)
	}

	dto := &MultipliersDTO{ActorID: snap.Actor().String(), SkillID: skill.String()}
	node, ok := h.registry.Resolve(skill)
	if !ok {
		return dto, nil
	}

	analysis := h.analyzer.Analyze(snap)
	metrics, ok := analysis.GroupOf(skill)
	if !ok {
		// The skill holds no experience yet; judge it by the group it would join.
		metrics = analysis.Groups[progression.DefaultGroupKey(skill)]
		metrics.GroupKey = progression.DefaultGroupKey(skill)
	}
	m := h.analyzer.Multipliers(node, snap, metrics)

	dto.Found = true
	dto.Dynamic = node.IsSynthetic()
	dto.Tree = node.TreeName()
	dto.GroupKey = m.GroupKey
	dto.Depth = m.Depth
	dto.XP = m.XP.Int64()
	dto.Capacity = node.Capacity().Int64()
	dto.XPRatio = m.XPRatio
	dto.Score = m.Score
	dto.OnDominantPath = m.OnDominantPath
	dto.Penalty = m.Penalty
	dto.Bonus = m.Bonus
	dto.Parts = BonusBreakdownDTO{
		Base:  m.Breakdown.Base,
		Depth: m.Breakdown.Depth,
		Spec:  m.Breakdown.Spec,
		Hyper: m.Breakdown.Hyper,
	}
	return dto, nil
}
