// Package catalog содержит статический каталог навыков: соответствие
// (категория, подпроблема) → требуемые навыки, подписи навыков и таблицу
// кросс-категорийной совместимости. Каталог меняется только вместе с
// релизом, поэтому представлен неизменяемыми таблицами, а не данными в БД.
package catalog

import (
	"sort"

	"github.com/ignatzorin/homemaster-backend/internal/models"
)

// Категории услуг
const (
	CategoryElectrical = "electrical"
	CategoryPlumbing   = "plumbing"
	CategoryAC         = "ac"
	CategoryAppliance  = "appliance"
	CategoryHandyman   = "handyman"
)

// requiredByProblem соответствие (категория, подпроблема) → требуемые навыки.
var requiredByProblem = map[string]map[string][]string{
	CategoryElectrical: {
		"outlet_failure":   {"outlet_repair"},
		"wiring_fault":     {"wiring_diagnostics", "wiring_replacement"},
		"panel_issue":      {"panel_service"},
		"lighting":         {"lighting_install"},
		"power_outage":     {"emergency_electrical", "wiring_diagnostics"},
	},
	CategoryPlumbing: {
		"leak":            {"leak_repair"},
		"clogged_drain":   {"drain_cleaning"},
		"pipe_burst":      {"emergency_plumbing", "pipe_replacement"},
		"fixture_install": {"fixture_install"},
		"water_heater":    {"water_heater_service"},
	},
	CategoryAC: {
		"no_cooling":  {"ac_diagnostics", "refrigerant_service"},
		"ac_install":  {"ac_install"},
		"maintenance": {"ac_maintenance"},
	},
	CategoryAppliance: {
		"washer":       {"washer_repair"},
		"refrigerator": {"refrigerator_repair"},
		"oven":         {"oven_repair"},
	},
	CategoryHandyman: {
		"furniture_assembly": {"furniture_assembly"},
		"mounting":           {"wall_mounting"},
		"door_lock":          {"lock_service"},
	},
}

// labels человекочитаемые подписи навыков для списков и причин матчинга.
var labels = map[string]string{
	"outlet_repair":        "Ремонт розеток и выключателей",
	"wiring_diagnostics":   "Диагностика проводки",
	"wiring_replacement":   "Замена проводки",
	"panel_service":        "Обслуживание электрощита",
	"lighting_install":     "Монтаж освещения",
	"emergency_electrical": "Аварийный вызов электрика",
	"leak_repair":          "Устранение протечек",
	"drain_cleaning":       "Прочистка канализации",
	"pipe_replacement":     "Замена труб",
	"emergency_plumbing":   "Аварийный вызов сантехника",
	"fixture_install":      "Установка сантехники",
	"water_heater_service": "Обслуживание водонагревателей",
	"ac_diagnostics":       "Диагностика кондиционеров",
	"refrigerant_service":  "Заправка хладагентом",
	"ac_install":           "Установка кондиционеров",
	"ac_maintenance":       "Обслуживание кондиционеров",
	"washer_repair":        "Ремонт стиральных машин",
	"refrigerator_repair":  "Ремонт холодильников",
	"oven_repair":          "Ремонт духовых шкафов",
	"furniture_assembly":   "Сборка мебели",
	"wall_mounting":        "Навес на стены",
	"lock_service":         "Замки и фурнитура",
}

// compatibleCategories кросс-категорийная совместимость: навык из смежной
// категории засчитывается при матчинге. Установка кондиционера, например,
// валидна и для электрика.
var compatibleCategories = map[string][]string{
	CategoryAC:        {CategoryElectrical},
	CategoryAppliance: {CategoryElectrical},
	CategoryHandyman:  {CategoryPlumbing, CategoryElectrical},
}

// proficiencyScores числовые веса уровней владения навыком.
var proficiencyScores = map[string]float64{
	models.ProficiencyBasic:        60,
	models.ProficiencyIntermediate: 80,
	models.ProficiencyExpert:       100,
}

// RequiredCapabilities возвращает требуемые навыки для категории и
// подпроблемы. Без подпроблемы — объединение всех навыков категории.
func RequiredCapabilities(category string, subProblem *string) []string {
	problems, ok := requiredByProblem[category]
	if !ok {
		return nil
	}
	if subProblem != nil && *subProblem != "" {
		return append([]string(nil), problems[*subProblem]...)
	}
	seen := make(map[string]struct{})
	var all []string
	for _, p := range sortedKeys(problems) {
		for _, id := range problems[p] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			all = append(all, id)
		}
	}
	return all
}

// Label возвращает подпись навыка, либо сам идентификатор, если
// подписи в каталоге нет.
func Label(capabilityID string) string {
	if l, ok := labels[capabilityID]; ok {
		return l
	}
	return capabilityID
}

// KnownCategory проверяет, известна ли категория каталогу.
func KnownCategory(category string) bool {
	_, ok := requiredByProblem[category]
	return ok
}

// CategoriesCompatible истинно, когда навык из категории capCategory
// засчитывается для заявки категории reqCategory.
func CategoriesCompatible(reqCategory, capCategory string) bool {
	if reqCategory == capCategory {
		return true
	}
	for _, c := range compatibleCategories[reqCategory] {
		if c == capCategory {
			return true
		}
	}
	return false
}

// ProficiencyScore возвращает числовой вес уровня владения, 0 для неизвестного.
func ProficiencyScore(proficiency string) float64 {
	return proficiencyScores[proficiency]
}

// sortedKeys даёт детерминированный порядок обхода, чтобы Reasons
// матчинга были воспроизводимы для одинаковых входов.
func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
