// aggregate сворачивает записи в корзины по ISO-неделям.
// Корзины вычисляются по требованию и в БД не хранятся.
package aggregate

import (
	"sort"
	"time"

	"github.com/savelevaa/tick-monitor/internal/models"
)

// GroupByISOWeek группирует записи по ISO (год, неделя).
// Каждая корзина суммирует случаи и запоминает минимальную/максимальную дату.
// Результат отсортирован по дате начала корзины.
// Инвариант: сумма Cases по корзинам равна сумме Cases по записям.
func GroupByISOWeek(records []models.Record, thresholds models.RiskThresholds) []models.WeekBucket {
	type key struct {
		year int
		week int
	}

	buckets := make(map[key]*models.WeekBucket)
	for _, rec := range records {
		if rec.Date.IsZero() {
			continue
		}
		y, w := rec.Date.ISOWeek()
		k := key{year: y, week: w}

		b, ok := buckets[k]
		if !ok {
			b = &models.WeekBucket{
				ISOYear:   y,
				ISOWeek:   w,
				StartDate: rec.Date,
				EndDate:   rec.Date,
			}
			buckets[k] = b
		}

		if rec.Date.Before(b.StartDate) {
			b.StartDate = rec.Date
		}
		if rec.Date.After(b.EndDate) {
			b.EndDate = rec.Date
		}
		b.Cases += rec.Cases
		b.RecordCount++
	}

	out := make([]models.WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		b.Risk = thresholds.RiskFor(b.Cases)
		out = append(out, *b)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.Before(out[j].StartDate)
	})

	return out
}

// WeekBounds возвращает понедельник и воскресенье ISO-недели, в которую
// попадает день. Используется подписями графика.
func WeekBounds(day time.Time) (monday, sunday time.Time) {
	day = models.Day(day)
	offset := (int(day.Weekday()) + 6) % 7
	monday = day.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// Tail возвращает последние n корзин (все, если их меньше).
func Tail(buckets []models.WeekBucket, n int) []models.WeekBucket {
	if n <= 0 || len(buckets) <= n {
		return buckets
	}
	return buckets[len(buckets)-n:]
}
