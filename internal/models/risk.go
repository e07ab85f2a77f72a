package models

// RiskLevel — уровень риска активности клещей.
// Внутри системы сравнивается по стабильному коду; русская подпись и цвет —
// только представление.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// Label возвращает русскую подпись уровня риска.
func (r RiskLevel) Label() string {
	switch r {
	case RiskLow:
		return "Низкий"
	case RiskModerate:
		return "Умеренный"
	case RiskHigh:
		return "Высокий"
	case RiskVeryHigh:
		return "Очень высокий"
	default:
		return "Нет данных"
	}
}

// Color возвращает цвет уровня риска для графика.
func (r RiskLevel) Color() string {
	switch r {
	case RiskLow:
		return "#00c853"
	case RiskModerate:
		return "#ffd600"
	case RiskHigh:
		return "#ff6f00"
	case RiskVeryHigh:
		return "#d32f2f"
	default:
		return "#9e9e9e"
	}
}

// RiskThresholds — пороги уровней риска (случаев за период).
// Интервалы полуоткрытые: cases < Low — низкий, ..., cases >= High — очень высокий.
type RiskThresholds struct {
	Low      int
	Moderate int
	High     int
}

// DefaultRiskThresholds — пороги по умолчанию, переопределяются конфигом.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Low: 50, Moderate: 100, High: 150}
}

// RiskFor вычисляет уровень риска по количеству случаев.
// Чистая функция: нулевое количество — отдельный уровень RiskNone.
func (t RiskThresholds) RiskFor(cases int) RiskLevel {
	switch {
	case cases <= 0:
		return RiskNone
	case cases < t.Low:
		return RiskLow
	case cases < t.Moderate:
		return RiskModerate
	case cases < t.High:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}
