// forecast строит прогноз недельных случаев по историческим корзинам.
//
// Обязательная базовая модель — скользящее среднее последних четырёх недель,
// экстраполированное вперёд. Поверх неё обучается линейная регрессия на окнах
// из четырёх недель; модель с меньшей MAE на отложенном хвосте побеждает.
// Прогнозист тотален: любая проблема деградирует до базовой модели либо до
// пустого результата, ошибка никогда не покидает пакет.
package forecast

import (
	"log/slog"
	"sort"
	"time"

	"github.com/savelevaa/tick-monitor/internal/models"
)

const (
	// windowSize — ширина окна признаков: четыре последние недели.
	windowSize = 4
	// minBuckets — минимум недельных корзин для обучения регрессии.
	minBuckets = 8
	// holdoutShare — доля хвоста серии, отложенная для сравнения моделей.
	holdoutShare = 0.2
)

// Predict строит horizon прогнозных точек по историческим корзинам.
// Возвращает пустой срез, если прогнозировать не из чего.
func Predict(buckets []models.WeekBucket, horizon int, lg *slog.Logger) []models.ForecastPoint {
	if lg == nil {
		lg = slog.Default()
	}
	if horizon <= 0 || len(buckets) == 0 {
		lg.Warn("forecast_no_input",
			slog.Int("buckets", len(buckets)),
			slog.Int("horizon", horizon),
		)
		return nil
	}

	series, lastDate := toSeries(buckets)
	if len(series) == 0 {
		lg.Warn("forecast_empty_series")
		return nil
	}

	model := selectModel(series, lg)

	// Каждая предсказанная неделя попадает в окно следующей.
	window := lastWindow(series)
	points := make([]models.ForecastPoint, 0, horizon)
	date := lastDate

	for i := 0; i < horizon; i++ {
		pred := model(window)
		if pred < 0 {
			pred = 0
		}
		cases := int(pred)

		date = date.AddDate(0, 0, 7)
		points = append(points, models.ForecastPoint{
			Date:       date,
			Cases:      cases,
			WeekIndex:  i + 1,
			IsForecast: true,
		})

		window = append(window[1:], float64(cases))
	}

	return points
}

// PredictYear2026 возвращает все прогнозные недели, попадающие в 2026 год.
func PredictYear2026(buckets []models.WeekBucket, now time.Time, lg *slog.Logger) []models.ForecastPoint {
	endOf2026 := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	horizon := 52
	if len(buckets) > 0 {
		last := buckets[len(buckets)-1].StartDate
		if weeks := int(endOf2026.Sub(last).Hours()/24/7) + 1; weeks > horizon {
			horizon = weeks
		}
	}

	all := Predict(buckets, horizon, lg)

	out := make([]models.ForecastPoint, 0, 52)
	for _, p := range all {
		if p.Date.Year() == 2026 {
			out = append(out, p)
		}
	}
	return out
}

// model — функция «окно последних недель -> прогноз следующей».
type model func(window []float64) float64

// toSeries разворачивает корзины в упорядоченный ряд сумм и дату последней недели.
func toSeries(buckets []models.WeekBucket) ([]float64, time.Time) {
	sorted := make([]models.WeekBucket, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate)
	})

	series := make([]float64, 0, len(sorted))
	var last time.Time
	for _, b := range sorted {
		series = append(series, float64(b.Cases))
		last = b.StartDate
	}
	return series, last
}

// lastWindow — последние windowSize значений ряда, дополненные нулями слева.
func lastWindow(series []float64) []float64 {
	window := make([]float64, windowSize)
	for i := 0; i < windowSize; i++ {
		idx := len(series) - windowSize + i
		if idx >= 0 {
			window[i] = series[idx]
		}
	}
	return window
}

// selectModel выбирает между базовой моделью и регрессией по MAE на хвосте.
func selectModel(series []float64, lg *slog.Logger) model {
	if len(series) < minBuckets || allZero(series) {
		lg.Info("forecast_baseline_only",
			slog.Int("weeks", len(series)),
			slog.Bool("all_zero", allZero(series)),
		)
		return baselineModel
	}

	features, targets := slidingWindows(series)
	if len(features) < 2 {
		return baselineModel
	}

	split := len(features) - int(float64(len(features))*holdoutShare)
	if split <= 0 || split >= len(features) {
		split = len(features) - 1
	}

	weights, ok := fitLeastSquares(features[:split], targets[:split])
	if !ok {
		lg.Warn("forecast_regression_degenerate")
		return baselineModel
	}

	regression := func(window []float64) float64 {
		return applyWeights(weights, window)
	}

	maeBase := meanAbsError(baselineModel, features[split:], targets[split:])
	maeReg := meanAbsError(regression, features[split:], targets[split:])

	lg.Info("forecast_model_selected",
		slog.Float64("mae_baseline", maeBase),
		slog.Float64("mae_regression", maeReg),
	)

	if maeReg < maeBase {
		return regression
	}
	return baselineModel
}

// baselineModel — среднее окна, округлённое вниз на клампе вызывающего.
func baselineModel(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// slidingWindows строит обучающие пары «окно -> следующая неделя».
// Окна с NaN/Inf или отрицательными значениями пропускаются.
func slidingWindows(series []float64) (features [][]float64, targets []float64) {
	for i := windowSize; i < len(series); i++ {
		window := series[i-windowSize : i]
		target := series[i]
		if !finite(window) || target < 0 || target != target {
			continue
		}
		features = append(features, window)
		targets = append(targets, target)
	}
	return features, targets
}

func finite(vals []float64) bool {
	for _, v := range vals {
		if v != v || v < 0 || v > 1e12 {
			return false
		}
	}
	return true
}

func allZero(series []float64) bool {
	for _, v := range series {
		if v != 0 {
			return false
		}
	}
	return true
}

func meanAbsError(m model, features [][]float64, targets []float64) float64 {
	if len(features) == 0 {
		return 0
	}
	var sum float64
	for i, f := range features {
		diff := m(f) - targets[i]
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	return sum / float64(len(features))
}

// fitLeastSquares решает нормальные уравнения для линейной модели
// с свободным членом: y ≈ w0 + w1*x1 + ... + w4*x4.
func fitLeastSquares(features [][]float64, targets []float64) ([]float64, bool) {
	n := windowSize + 1

	// A = XᵀX, b = Xᵀy, где первый столбец X — единицы.
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n+1)
	}

	row := make([]float64, n)
	for k, f := range features {
		row[0] = 1
		copy(row[1:], f)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a[i][j] += row[i] * row[j]
			}
			a[i][n] += row[i] * targets[k]
		}
	}

	return solveGauss(a)
}

// solveGauss — гауссово исключение с выбором главного элемента.
func solveGauss(a [][]float64) ([]float64, bool) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-9 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = a[i][n] / a[i][i]
	}
	return weights, true
}

func applyWeights(w []float64, window []float64) float64 {
	out := w[0]
	for i, v := range window {
		if i+1 < len(w) {
			out += w[i+1] * v
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
