// newsfeed выводит человекочитаемые новости из недавних записей:
// всплески по локациям и дням, тренды недель и сводку по районам.
package newsfeed

import (
	"fmt"
	"sort"
	"time"

	"github.com/savelevaa/tick-monitor/internal/aggregate"
	"github.com/savelevaa/tick-monitor/internal/models"
)

const (
	// DefaultWindowDays — окно анализа по умолчанию.
	DefaultWindowDays = 30
	// maxItems — ограничение длины ленты.
	maxItems = 20
)

// Generate строит ленту новостей по записям за последние windowDays дней.
// Лента отсортирована по (приоритет убыв., дата убыв.) и ограничена 20 элементами.
func Generate(records []models.Record, now time.Time, windowDays int) []models.NewsItem {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	today := models.Day(now)
	cutoff := today.AddDate(0, 0, -windowDays)
	prevCutoff := cutoff.AddDate(0, 0, -windowDays)

	var recent, previous []models.Record
	for _, rec := range records {
		switch {
		case !rec.Date.Before(cutoff):
			recent = append(recent, rec)
		case !rec.Date.Before(prevCutoff):
			previous = append(previous, rec)
		}
	}

	if len(recent) == 0 {
		return nil
	}

	var items []models.NewsItem
	items = append(items, locationItems(recent, previous, windowDays)...)
	items = append(items, dailySpikes(recent)...)
	if trend, ok := trendItem(recent, today); ok {
		items = append(items, trend)
	}
	if summary, ok := summaryItem(recent, today); ok {
		items = append(items, summary)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		}
		return items[i].Date.After(items[j].Date)
	})

	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// locationStat — накопленные случаи по локации.
type locationStat struct {
	location string
	cases    int
	lastDate time.Time
}

// byLocation агрегирует случаи по локациям, без учёта записей без локации.
func byLocation(records []models.Record) []locationStat {
	acc := make(map[string]*locationStat)
	for _, rec := range records {
		if rec.Location == "" {
			continue
		}
		s, ok := acc[rec.Location]
		if !ok {
			s = &locationStat{location: rec.Location, lastDate: rec.Date}
			acc[rec.Location] = s
		}
		s.cases += rec.Cases
		if rec.Date.After(s.lastDate) {
			s.lastDate = rec.Date
		}
	}

	out := make([]locationStat, 0, len(acc))
	for _, s := range acc {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].cases != out[j].cases {
			return out[i].cases > out[j].cases
		}
		return out[i].location < out[j].location
	})
	return out
}

// locationItems порождает всплески и уведомления об активности по локациям.
// Всплеск: текущие случаи > 1.5×предыдущего окна и не меньше двух.
// Активность: не меньше пяти случаев без всплеска.
func locationItems(recent, previous []models.Record, windowDays int) []models.NewsItem {
	prevStats := make(map[string]int)
	for _, s := range byLocation(previous) {
		prevStats[s.location] = s.cases
	}

	var items []models.NewsItem
	for _, s := range byLocation(recent) {
		if s.cases <= 0 {
			continue
		}
		prev := prevStats[s.location]

		if float64(s.cases) > 1.5*float64(prev) && s.cases >= 2 {
			priority := models.PriorityMedium
			if s.cases >= 10 {
				priority = models.PriorityHigh
			}
			items = append(items, models.NewsItem{
				Text: fmt.Sprintf("Всплеск активности клещей в %s, %d случаев за последние %d дней",
					s.location, s.cases, windowDays),
				Date:     s.lastDate,
				Location: s.location,
				Cases:    s.cases,
				Kind:     models.NewsSpike,
				Priority: priority,
			})
			continue
		}

		if s.cases >= 5 {
			items = append(items, models.NewsItem{
				Text: fmt.Sprintf("Повышенная активность клещей в %s, зарегистрировано %d случаев",
					s.location, s.cases),
				Date:     s.lastDate,
				Location: s.location,
				Cases:    s.cases,
				Kind:     models.NewsActivity,
				Priority: models.PriorityMedium,
			})
		}
	}
	return items
}

// dailySpikes ищет дни, чьи случаи больше чем вдвое превышают среднее
// предыдущих дней окна (и не меньше трёх).
func dailySpikes(recent []models.Record) []models.NewsItem {
	type dayStat struct {
		date     time.Time
		cases    int
		location string
	}

	acc := make(map[time.Time]*dayStat)
	for _, rec := range recent {
		s, ok := acc[rec.Date]
		if !ok {
			s = &dayStat{date: rec.Date}
			acc[rec.Date] = s
		}
		s.cases += rec.Cases
		if s.location == "" && rec.Location != "" {
			s.location = rec.Location
		}
	}

	days := make([]dayStat, 0, len(acc))
	for _, s := range acc {
		days = append(days, *s)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].date.Before(days[j].date) })

	var items []models.NewsItem
	for i, d := range days {
		if d.cases < 3 {
			continue
		}

		var prevSum int
		for _, p := range days[:i] {
			prevSum += p.cases
		}
		var avg float64
		if i > 0 {
			avg = float64(prevSum) / float64(i)
		}

		if float64(d.cases) > 2*avg {
			location := d.location
			if location == "" {
				location = "Тюменской области"
			}
			items = append(items, models.NewsItem{
				Text: fmt.Sprintf("Всплеск активности клещей в %s, %d укусов за день (%s)",
					location, d.cases, d.date.Format("02.01.2006")),
				Date:     d.date,
				Location: location,
				Cases:    d.cases,
				Kind:     models.NewsDailySpike,
				Priority: models.PriorityHigh,
			})
		}
	}
	return items
}

// trendItem сравнивает последнюю ISO-неделю со средним двух предыдущих.
func trendItem(recent []models.Record, today time.Time) (models.NewsItem, bool) {
	buckets := aggregate.GroupByISOWeek(recent, models.DefaultRiskThresholds())
	if len(buckets) < 3 {
		return models.NewsItem{}, false
	}

	last := buckets[len(buckets)-1].Cases
	prevMean := float64(buckets[len(buckets)-2].Cases+buckets[len(buckets)-3].Cases) / 2

	if float64(last) > prevMean*1.3 && last >= 5 {
		return models.NewsItem{
			Text: fmt.Sprintf("Наблюдается рост активности клещей, за последнюю неделю зарегистрировано %d случаев",
				last),
			Date:     today,
			Cases:    last,
			Kind:     models.NewsTrend,
			Priority: models.PriorityMedium,
		}, true
	}

	return models.NewsItem{}, false
}

// summaryItem — сводка по трём локациям с наибольшей активностью.
func summaryItem(recent []models.Record, today time.Time) (models.NewsItem, bool) {
	stats := byLocation(recent)
	if len(stats) > 3 {
		stats = stats[:3]
	}
	if len(stats) == 0 {
		return models.NewsItem{}, false
	}

	var total int
	names := make([]string, 0, len(stats))
	for _, s := range stats {
		total += s.cases
		names = append(names, s.location)
	}
	if total < 10 {
		return models.NewsItem{}, false
	}

	joined := names[0]
	for _, n := range names[1:] {
		joined += ", " + n
	}

	return models.NewsItem{
		Text: fmt.Sprintf("Наибольшая активность клещей в районах: %s (всего %d случаев)",
			joined, total),
		Date:     today,
		Location: joined,
		Cases:    total,
		Kind:     models.NewsSummary,
		Priority: models.PriorityLow,
	}, true
}
