// validate применяет инварианты доменной модели к нормализованным записям.
// Отклонение не останавливает пачку: пайплайн считает причины по источникам.
package validate

import (
	"strings"
	"time"

	"github.com/savelevaa/tick-monitor/internal/models"
)

// Reason — код причины отклонения записи.
type Reason string

const (
	MissingField       Reason = "missing_field"
	BadType            Reason = "bad_type"
	NegativeCases      Reason = "negative_cases"
	ImplausibleCases   Reason = "implausible_cases"
	FutureDate         Reason = "future_date"
	AncientDate        Reason = "ancient_date"
	OffSeasonWithCases Reason = "off_season_with_cases"
	BadURL             Reason = "bad_url"
	OversizedField     Reason = "oversized_field"
)

// maxSourceLen — ограничение длины тега источника.
const maxSourceLen = 200

// Check возвращает список нарушений инвариантов; пустой список — запись валидна.
// Порядок проверок стабилен, первая причина используется как основная.
func Check(rec models.Record, now time.Time) []Reason {
	var issues []Reason

	if rec.Date.IsZero() {
		issues = append(issues, MissingField)
	}
	if strings.TrimSpace(rec.Source) == "" {
		issues = append(issues, MissingField)
	}

	if rec.Cases < 0 {
		issues = append(issues, NegativeCases)
	} else if rec.Cases > models.MaxCases {
		issues = append(issues, ImplausibleCases)
	}

	if !rec.Date.IsZero() {
		today := models.Day(now)
		if rec.Date.After(today) {
			issues = append(issues, FutureDate)
		} else if rec.Date.Before(models.MinDate) {
			issues = append(issues, AncientDate)
		} else if rec.Cases > 0 && !models.InSeason(rec.Date) {
			issues = append(issues, OffSeasonWithCases)
		}
	}

	if rec.URL != "" && !strings.HasPrefix(rec.URL, "http://") && !strings.HasPrefix(rec.URL, "https://") {
		issues = append(issues, BadURL)
	}

	if len([]rune(rec.Title)) > models.MaxTitleLen ||
		len([]rune(rec.Content)) > models.MaxContentLen ||
		len([]rune(rec.Source)) > maxSourceLen {
		issues = append(issues, OversizedField)
	}

	return issues
}
