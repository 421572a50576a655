// Package matching реализует движок подбора мастеров: чистые функции
// над требованием заявки и набором навыков мастера.
package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignatzorin/homemaster-backend/internal/catalog"
	"github.com/ignatzorin/homemaster-backend/internal/models"
)

// Множители сложности и срочности. Применяются только при наличии
// эксперта (сложность) или аварийного/любимого навыка (срочность).
const (
	complexMultiplier   = 1.1
	criticalMultiplier  = 1.2
	immediateMultiplier = 1.15

	// Категорийный фолбэк, когда подпроблема не разрешилась в навыки.
	categoryFallbackScale = 0.7
)

// MatchResult результат скоринга мастера против требования заявки.
type MatchResult struct {
	Score               float64  `json:"score"`
	MatchedCapabilities []string `json:"matched_capabilities"`
	Reasons             []string `json:"reasons"`
}

// CalculateMatchScore считает балл 0..100 для набора навыков мастера
// против требования. Детерминирован для одинаковых входов.
func CalculateMatchScore(req models.ServiceRequirement, caps []models.Capability) MatchResult {
	required := catalog.RequiredCapabilities(req.Category, req.SubProblem)
	if len(required) == 0 {
		return categoryFallback(req, caps)
	}

	byID := make(map[string]models.Capability, len(caps))
	for _, c := range caps {
		// При дубликатах берём более сильный уровень владения.
		if prev, ok := byID[c.ID]; !ok || catalog.ProficiencyScore(c.Proficiency) > catalog.ProficiencyScore(prev.Proficiency) {
			byID[c.ID] = c
		}
	}

	var (
		sum      float64
		matched  []string
		reasons  []string
		expert   bool
		urgentOK bool
	)
	for _, id := range required {
		pc, ok := byID[id]
		if !ok || !catalog.CategoriesCompatible(req.Category, pc.Category) {
			continue
		}
		sum += catalog.ProficiencyScore(pc.Proficiency)
		matched = append(matched, id)
		reasons = append(reasons, fmt.Sprintf("навык «%s» (%s)", catalog.Label(id), pc.Proficiency))
		if pc.Proficiency == models.ProficiencyExpert {
			expert = true
		}
		if strings.Contains(id, "emergency") || pc.IsFavorite {
			urgentOK = true
		}
	}

	if len(matched) == 0 {
		return MatchResult{Score: 0, MatchedCapabilities: []string{}, Reasons: []string{"нет требуемых навыков"}}
	}

	coverage := float64(len(matched)) / float64(len(required))
	score := (sum / float64(len(matched))) * coverage
	reasons = append(reasons, fmt.Sprintf("покрытие %d из %d навыков", len(matched), len(required)))

	switch req.Complexity {
	case models.ComplexityComplex:
		if expert {
			score *= complexMultiplier
			reasons = append(reasons, "эксперт для сложных работ")
		}
	case models.ComplexityCritical:
		if expert {
			score *= criticalMultiplier
			reasons = append(reasons, "эксперт для критичных работ")
		}
	}

	if req.Urgency == models.UrgencyImmediate && urgentOK {
		score *= immediateMultiplier
		reasons = append(reasons, "готов к срочному выезду")
	}

	return MatchResult{
		Score:               clamp(score),
		MatchedCapabilities: matched,
		Reasons:             reasons,
	}
}

// categoryFallback скоринг только по категории: средний вес навыков
// мастера в категории заявки, масштабированный вниз.
func categoryFallback(req models.ServiceRequirement, caps []models.Capability) MatchResult {
	var (
		sum   float64
		count int
	)
	for _, c := range caps {
		if c.Category == req.Category {
			sum += catalog.ProficiencyScore(c.Proficiency)
			count++
		}
	}
	if count == 0 {
		return MatchResult{Score: 0, MatchedCapabilities: []string{}, Reasons: []string{"категория не совпадает"}}
	}
	return MatchResult{
		Score:               clamp(sum / float64(count) * categoryFallbackScale),
		MatchedCapabilities: []string{},
		Reasons:             []string{fmt.Sprintf("совпадение по категории «%s»", req.Category)},
	}
}

// CanHandleRequest истинно, когда мастеру вообще стоит показывать заявку:
// либо балл положительный, либо совпала категория хотя бы одного навыка.
func CanHandleRequest(req models.ServiceRequirement, caps []models.Capability) bool {
	if CalculateMatchScore(req, caps).Score > 0 {
		return true
	}
	for _, c := range caps {
		if c.Category == req.Category {
			return true
		}
	}
	return false
}

// RankedJob заявка с приписанным результатом матчинга.
type RankedJob struct {
	Job   *models.Job `json:"job"`
	Match MatchResult `json:"match"`
}

// Нижняя граница балла для заявок с совпавшей категорией: такие заявки
// не должны прятаться в хвосте ленты, даже если детальный балл низкий
// или нулевой.
const categoryScoreFloor = 20

// RankJobsForProvider ранжирует пул заявок в статусе searching для мастера:
// по убыванию балла, при равенстве — старшая заявка первой. Порядок
// стабильный.
func RankJobsForProvider(jobs []*models.Job, caps []models.Capability) []RankedJob {
	ranked := make([]RankedJob, 0, len(jobs))
	for _, job := range jobs {
		req := models.RequirementFromJob(job)
		res := CalculateMatchScore(req, caps)
		inCategory := categoryMatches(req.Category, caps)
		if res.Score == 0 && !inCategory {
			continue
		}
		if inCategory && res.Score < categoryScoreFloor {
			res.Score = categoryScoreFloor
		}
		ranked = append(ranked, RankedJob{Job: job, Match: res})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Match.Score != ranked[j].Match.Score {
			return ranked[i].Match.Score > ranked[j].Match.Score
		}
		return ranked[i].Job.CreatedAt.Before(ranked[j].Job.CreatedAt)
	})
	return ranked
}

func categoryMatches(category string, caps []models.Capability) bool {
	for _, c := range caps {
		if c.Category == category {
			return true
		}
	}
	return false
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
