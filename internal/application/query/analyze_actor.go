// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/skill-progression/internal/domain/ledger"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE ACTOR QUERY
// Считает метрики специализации по текущему снимку леджера игрока.
// Ничего не сохраняет: для публикации проекции есть команда refresh_progression.
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzeActorQuery содержит параметры анализа.
type AnalyzeActorQuery struct {
	// ActorID - идентификатор игрока.
	ActorID string
}

// Validate проверяет корректность параметров запроса.
func (q AnalyzeActorQuery) Validate() error {
	if q.ActorID == "" {
		return errors.New("actor_id is required")
	}
	return nil
}

// GroupDTO - метрики одной группы навыков.
type GroupDTO struct {
	// Key - ключ группы: верхний сегмент пути или "cluster:<префикс>".
	Key string `json:"key"`

	// IsCluster - группа сформирована динамической кластеризацией.
	IsCluster bool `json:"is_cluster"`

	MaxDepth     int     `json:"max_depth"`
	Breadth      int     `json:"breadth"`
	AverageDepth float64 `json:"average_depth"`
	Score        float64 `json:"score"`
	TotalXP      int64   `json:"total_xp"`
	Skills       int     `json:"skills"`
}

// ClusterDTO - динамический кластер.
type ClusterDTO struct {
	Key               string   `json:"key"`
	Prefix            string   `json:"prefix"`
	Members           []string `json:"members"`
	AverageSimilarity float64  `json:"average_similarity"`
}

// ActorAnalysisDTO - результат анализа игрока.
type ActorAnalysisDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Идентификация
	// ─────────────────────────────────────────────────────────────────────────

	ActorID string `json:"actor_id"`

	// Version - версия леджера, по которой построен анализ.
	Version uint64 `json:"version"`

	// ─────────────────────────────────────────────────────────────────────────
	// Результаты
	// ─────────────────────────────────────────────────────────────────────────

	// Groups - группы, отсортированные по ключу.
	Groups []GroupDTO `json:"groups"`

	// Clusters - динамические кластеры в порядке обнаружения.
	Clusters []ClusterDTO `json:"clusters,omitempty"`

	// Unresolved - навыки, которых нет ни в одном дереве.
	Unresolved []string `json:"unresolved,omitempty"`
}

// AnalyzeActorHandler обрабатывает запрос анализа.
type AnalyzeActorHandler struct {
	book     *ledger.Book
	analyzer *progression.Analyzer
}

// NewAnalyzeActorHandler создаёт новый обработчик.
func NewAnalyzeActorHandler(book *ledger.Book, analyzer *progression.Analyzer) *AnalyzeActorHandler {
	return &AnalyzeActorHandler{book: book, analyzer: analyzer}
}

// Handle выполняет запрос.
func (h *AnalyzeActorHandler) Handle(ctx context.Context, q AnalyzeActorQuery) (*ActorAnalysisDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("analyze_actor: %w: %w", shared.ErrValidation, err)
	}
	snap, err := loadSnapshot(ctx, h.book, q.ActorID)
	if err != nil {
		return nil, fmt.Errorf("analyze_actor: %w", err)
	}
	return NewActorAnalysisDTO(h.analyzer.Analyze(snap)), nil
}

// NewActorAnalysisDTO converts an analysis into its transport form.
func NewActorAnalysisDTO(a progression.Analysis) *ActorAnalysisDTO {
	dto := &ActorAnalysisDTO{
		ActorID: a.Actor.String(),
		Version: a.Version,
		Groups:  make([]GroupDTO, 0, len(a.Groups)),
	}
	for _, key := range a.GroupKeys() {
		dto.Groups = append(dto.Groups, newGroupDTO(a.Groups[key]))
	}
	for _, c := range a.Clusters {
		dto.Clusters = append(dto.Clusters, ClusterDTO{
			Key:               c.Key,
			Prefix:            c.Prefix.String(),
			Members:           skillStrings(c.Members),
			AverageSimilarity: c.AverageSimilarity,
		})
	}
	dto.Unresolved = skillStrings(a.Unresolved)
	return dto
}

func newGroupDTO(m progression.SpecializationMetrics) GroupDTO {
	return GroupDTO{
		Key:          m.GroupKey,
		IsCluster:    m.IsCluster(),
		MaxDepth:     m.MaxDepth,
		Breadth:      m.Breadth,
		AverageDepth: m.AverageDepth,
		Score:        m.Score,
		TotalXP:      m.TotalXP.Int64(),
		Skills:       m.Skills,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func loadSnapshot(ctx context.Context, book *ledger.Book, actorID string) (ledger.Snapshot, error) {
	actor, err := shared.NewActorID(actorID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	l, err := book.GetOrLoad(ctx, actor)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return l.Snapshot(), nil
}

func skillStrings(ids []shared.SkillID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
