package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/savelevaa/tick-monitor/internal/aggregate"
	"github.com/savelevaa/tick-monitor/internal/extract"
	"github.com/savelevaa/tick-monitor/internal/forecast"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/newsfeed"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
)

// dateLayout — формат дат для слоя представления.
const dateLayout = "02.01.2006"

// monthNamesRu — фиксированная карта русских названий месяцев.
var monthNamesRu = map[time.Month]string{
	time.January: "Январь", time.February: "Февраль", time.March: "Март",
	time.April: "Апрель", time.May: "Май", time.June: "Июнь",
	time.July: "Июль", time.August: "Август", time.September: "Сентябрь",
	time.October: "Октябрь", time.November: "Ноябрь", time.December: "Декабрь",
}

// WeekStatView — блок статистики одной недели.
type WeekStatView struct {
	Cases int    `json:"cases"`
	Date  string `json:"date"`
	Risk  string `json:"risk_level"`
}

// Stats — текущая и предыдущая неделя для главного экрана.
type Stats struct {
	CurrentWeek  WeekStatView `json:"current_week"`
	PreviousWeek WeekStatView `json:"previous_week"`
}

// GetStats возвращает статистику текущей и предыдущей недели:
// ближайшие записи с датой не позже сегодня и не позже недели назад.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	const op = "service.queries.GetStats"

	today := models.Day(s.now())

	current, err := s.weekStat(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("%s: current: %w", op, err)
	}
	previous, err := s.weekStat(ctx, today.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("%s: previous: %w", op, err)
	}

	return &Stats{CurrentWeek: current, PreviousWeek: previous}, nil
}

func (s *Service) weekStat(ctx context.Context, target time.Time) (WeekStatView, error) {
	rec, err := s.storage.NearestRecord(ctx, target)
	if err != nil {
		return WeekStatView{}, err
	}
	if rec == nil {
		return WeekStatView{
			Cases: 0,
			Date:  target.Format(dateLayout),
			Risk:  models.RiskNone.Label(),
		}, nil
	}
	return WeekStatView{
		Cases: rec.Cases,
		Date:  rec.Date.Format(dateLayout),
		Risk:  rec.RiskLevel.Label(),
	}, nil
}

// SourceItem — запись для списка источников.
type SourceItem struct {
	Date     string `json:"date"`
	Cases    int    `json:"cases"`
	Risk     string `json:"risk_level"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	URL      string `json:"url"`
	Location string `json:"location,omitempty"`
}

// GetSources возвращает последние записи, новые сначала.
// limit <= 0 заменяется значением по умолчанию, верхняя граница — из конфига.
func (s *Service) GetSources(ctx context.Context, limit int) ([]SourceItem, error) {
	const op = "service.queries.GetSources"

	if limit <= 0 {
		limit = 20
	}
	if max := s.cfg.Graph.FilteredMaxItems; max > 0 && limit > max {
		limit = max
	}

	records, err := s.storage.RecentRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]SourceItem, 0, len(records))
	for _, rec := range records {
		out = append(out, SourceItem{
			Date:     rec.Date.Format(dateLayout),
			Cases:    rec.Cases,
			Risk:     rec.RiskLevel.Label(),
			Source:   rec.Source,
			Title:    rec.Title,
			Content:  rec.Content,
			URL:      rec.URL,
			Location: rec.Location,
		})
	}
	return out, nil
}

// GraphData — данные недельного графика: подписи, суммы и цвета.
type GraphData struct {
	Weeks  []string `json:"weeks"`
	Cases  []int    `json:"cases"`
	Colors []string `json:"colors"`
}

// GetGraphData возвращает недельные корзины для графика.
// Без фильтра — последние cfg.Graph.WeeksToShow корзин; с фильтром —
// все корзины диапазона.
func (s *Service) GetGraphData(ctx context.Context, start, end *time.Time) (*GraphData, error) {
	const op = "service.queries.GetGraphData"

	var buckets []models.WeekBucket
	if start != nil && end != nil {
		records, err := s.storage.RecordsInRange(ctx, models.Day(*start), models.Day(*end))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		buckets = aggregate.GroupByISOWeek(records, s.thresholds)
	} else {
		all, err := s.storage.GroupByISOWeek(ctx, s.thresholds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		buckets = aggregate.Tail(all, s.cfg.Graph.WeeksToShow)
	}

	data := &GraphData{
		Weeks:  make([]string, 0, len(buckets)),
		Cases:  make([]int, 0, len(buckets)),
		Colors: make([]string, 0, len(buckets)),
	}
	for _, b := range buckets {
		label := b.StartDate.Format("02.01") + "-" + b.EndDate.Format("02.01")
		data.Weeks = append(data.Weeks, label)
		data.Cases = append(data.Cases, b.Cases)
		data.Colors = append(data.Colors, b.Risk.Color())
	}
	return data, nil
}

// MapView — диапазон данных для карты.
type MapView string

const (
	MapViewAll   MapView = "all"
	MapViewWeek  MapView = "week"
	MapViewMonth MapView = "month"
)

// MapPoint — маркер на карте области.
type MapPoint struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Location string  `json:"location"`
	Cases    int     `json:"cases"`
	Date     string  `json:"date"`
	Source   string  `json:"source"`
	Title    string  `json:"title"`
}

// GetMapData возвращает маркеры карты за выбранный период.
// Записи без локации пробуют распознать её из заголовка и текста;
// нераспознанные пропускаются.
func (s *Service) GetMapData(ctx context.Context, view MapView) ([]MapPoint, error) {
	const op = "service.queries.GetMapData"

	today := models.Day(s.now())

	var records []models.Record
	var err error
	switch view {
	case MapViewWeek:
		records, err = s.storage.RecordsInRange(ctx, today.AddDate(0, 0, -7), today)
	case MapViewMonth:
		records, err = s.storage.RecordsInRange(ctx, today.AddDate(0, 0, -30), today)
	default:
		records, err = s.storage.AllRecords(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]MapPoint, 0, len(records))
	for _, rec := range records {
		location := rec.Location
		if location == "" {
			location = extract.FindLocality(rec.Title + " " + rec.Content)
		}
		if location == "" {
			continue
		}

		lat, lng := extract.Coordinates(location)
		out = append(out, MapPoint{
			Lat:      lat,
			Lng:      lng,
			Location: location,
			Cases:    rec.Cases,
			Date:     rec.Date.Format(dateLayout),
			Source:   rec.Source,
			Title:    truncateRunes(rec.Title, 50),
		})
	}
	return out, nil
}

// MonthForecast — месячный свод прогноза.
type MonthForecast struct {
	Month      string `json:"month"`
	TotalCases int    `json:"total_cases"`
	AvgWeekly  int    `json:"avg_weekly"`
}

// WeekForecast — одна прогнозная неделя.
type WeekForecast struct {
	Date  string `json:"date"`
	Cases int    `json:"cases"`
	Week  int    `json:"week"`
}

// Forecast2026 — прогноз на 2026 год: по месяцам и по неделям.
type Forecast2026 struct {
	Monthly []MonthForecast `json:"monthly"`
	Weekly  []WeekForecast  `json:"weekly"`
}

// GetForecast2026 возвращает прогноз на 2026 год.
// Использует кэш асинхронного пересчёта; при пустом кэше считает на месте.
// Сам прогнозист ошибок не возвращает; ошибка приходит только при сбое
// чтения истории из хранилища.
func (s *Service) GetForecast2026(ctx context.Context) (*Forecast2026, error) {
	const op = "service.queries.GetForecast2026"

	s.forecastMu.RLock()
	points := s.forecast2026
	s.forecastMu.RUnlock()

	if len(points) == 0 {
		var err error
		points, err = s.computeForecast2026(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return buildForecast2026(points), nil
}

// computeForecast2026 строит прогнозные точки 2026 года по содержимому БД.
func (s *Service) computeForecast2026(ctx context.Context) ([]models.ForecastPoint, error) {
	buckets, err := s.storage.GroupByISOWeek(ctx, s.thresholds)
	if err != nil {
		return nil, err
	}
	return forecast.PredictYear2026(buckets, s.now(), log.From(ctx)), nil
}

// buildForecast2026 сворачивает недельные точки в месячный свод.
func buildForecast2026(points []models.ForecastPoint) *Forecast2026 {
	out := &Forecast2026{
		Monthly: []MonthForecast{},
		Weekly:  make([]WeekForecast, 0, len(points)),
	}

	type monthAgg struct {
		name  string
		total int
		weeks int
	}
	months := make(map[string]*monthAgg)
	var monthKeys []string

	for _, p := range points {
		out.Weekly = append(out.Weekly, WeekForecast{
			Date:  p.Date.Format(dateLayout),
			Cases: p.Cases,
			Week:  p.WeekIndex,
		})

		key := p.Date.Format("2006-01")
		agg, ok := months[key]
		if !ok {
			agg = &monthAgg{name: fmt.Sprintf("%s %d", monthNamesRu[p.Date.Month()], p.Date.Year())}
			months[key] = agg
			monthKeys = append(monthKeys, key)
		}
		agg.total += p.Cases
		agg.weeks++
	}

	sort.Strings(monthKeys)
	for _, key := range monthKeys {
		agg := months[key]
		avg := 0
		if agg.weeks > 0 {
			avg = agg.total / agg.weeks
		}
		out.Monthly = append(out.Monthly, MonthForecast{
			Month:      agg.name,
			TotalCases: agg.total,
			AvgWeekly:  avg,
		})
	}
	return out
}

// NewsItemView — новость ленты для представления.
type NewsItemView struct {
	Text     string `json:"text"`
	Date     string `json:"date"`
	Location string `json:"location,omitempty"`
	Cases    int    `json:"cases"`
	Kind     string `json:"type"`
	Priority string `json:"priority"`
}

// NewsFeed — производная лента новостей.
type NewsFeed struct {
	News  []NewsItemView `json:"news"`
	Count int            `json:"count"`
}

// GetNewsFeed генерирует ленту новостей по записям двух последних окон анализа.
func (s *Service) GetNewsFeed(ctx context.Context) (*NewsFeed, error) {
	const op = "service.queries.GetNewsFeed"

	today := models.Day(s.now())
	from := today.AddDate(0, 0, -2*newsfeed.DefaultWindowDays)

	records, err := s.storage.RecordsInRange(ctx, from, today)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items := newsfeed.Generate(records, s.now(), newsfeed.DefaultWindowDays)

	feed := &NewsFeed{News: make([]NewsItemView, 0, len(items))}
	for _, item := range items {
		feed.News = append(feed.News, NewsItemView{
			Text:     item.Text,
			Date:     item.Date.Format(dateLayout),
			Location: item.Location,
			Cases:    item.Cases,
			Kind:     string(item.Kind),
			Priority: string(item.Priority),
		})
	}
	feed.Count = len(feed.News)

	log.From(ctx).Info("news_feed_generated",
		slog.String("op", op),
		slog.Int("count", feed.Count),
	)

	return feed, nil
}

// YearSummary — свод одного календарного года.
type YearSummary struct {
	TotalCases   int     `json:"total_cases"`
	RecordsCount int     `json:"records_count"`
	AvgPerMonth  float64 `json:"avg_per_month"`
}

// CompareYears сравнивает последние четыре календарных года.
func (s *Service) CompareYears(ctx context.Context) (map[int]YearSummary, error) {
	const op = "service.queries.CompareYears"

	currentYear := s.now().UTC().Year()
	out := make(map[int]YearSummary, 4)

	for i := 0; i < 4; i++ {
		year := currentYear - i
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)

		records, err := s.storage.RecordsInRange(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("%s: year %d: %w", op, year, err)
		}

		var total int
		for _, rec := range records {
			total += rec.Cases
		}

		summary := YearSummary{TotalCases: total, RecordsCount: len(records)}
		if len(records) > 0 {
			summary.AvgPerMonth = float64(total) / 12
		}
		out[year] = summary
	}

	return out, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
