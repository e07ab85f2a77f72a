// models содержит доменные сущности монитора активности клещей.
// Эти типы используются слоями пайплайна, хранилища и сервиса.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ограничения полей записи. Значения сверх лимита обрезаются экстракторами,
// а валидатор отклоняет запись, если лимит нарушен на входе в хранилище.
const (
	MaxTitleLen   = 200
	MaxContentLen = 5000
	MaxCases      = 10000
)

// MinDate — нижняя граница календарной даты наблюдения.
// Более ранние записи считаются мусором исторических страниц.
var MinDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Record — нормализованное наблюдение об активности клещей.
//
// Особенности:
//   - ID — UUIDv4, присваивается хранилищем;
//   - Date — календарный день (UTC-полночь), без компоненты времени;
//   - Cases == 0 означает «упоминание без количества»;
//   - URL — первичный ключ дедупликации, когда непустой;
//   - временные метки — в UTC.
type Record struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID
	// Date — календарная дата наблюдения.
	Date time.Time
	// Cases — количество обращений/укусов, 0..MaxCases.
	Cases int
	// RiskLevel — производный уровень риска (чистая функция от Cases).
	RiskLevel RiskLevel
	// Source — короткий тег источника (rospotrebnadzor-web, telegram, ...).
	Source string
	// Title — заголовок, не длиннее MaxTitleLen.
	Title string
	// Content — текст записи, не длиннее MaxContentLen.
	Content string
	// URL — каноническая абсолютная ссылка на материал (может быть пустой).
	URL string
	// Location — нормализованное название населённого пункта (может быть пустым).
	Location string
	// FirstSeenAt — момент первого сохранения записи (UTC).
	FirstSeenAt time.Time
	// LastUpdatedAt — момент последнего обновления изменяемых полей (UTC).
	LastUpdatedAt time.Time
}

// TitleKey возвращает ключ заголовка для дедупликации:
// обрезанный до MaxTitleLen, приведённый к нижнему регистру, без крайних пробелов.
func (r Record) TitleKey() string {
	title := strings.ToLower(strings.TrimSpace(r.Title))
	runes := []rune(title)
	if len(runes) > MaxTitleLen {
		return string(runes[:MaxTitleLen])
	}
	return title
}

// Day нормализует момент времени к календарному дню в UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RawRecord — сырой кандидат, извлечённый экстрактором источника.
// Ещё не содержит проверенных фактов: дата, количество и локация
// извлекаются отдельным шагом (extract).
type RawRecord struct {
	// RawText — полный текст кандидата (заголовок + тело).
	RawText string
	// DateText — текст, из которого источник предлагает извлекать дату
	// (подпись «опубликовано ...», атрибут datetime и т.п.).
	DateText string
	// URL — ссылка на материал, если источник её дал.
	URL string
	// TitleGuess — предполагаемый заголовок.
	TitleGuess string
	// SourceTag — тег источника, который породил кандидата.
	SourceTag string
	// PublishedAt — дата публикации из метаданных источника (RSS pubDate,
	// атрибут datetime). Нулевое значение — «метаданных нет».
	PublishedAt time.Time
}

// InSeason сообщает, попадает ли дата в сезон активности клещей
// Тюменской области: 20 апреля — 10 октября включительно.
func InSeason(day time.Time) bool {
	switch day.Month() {
	case time.May, time.June, time.July, time.August, time.September:
		return true
	case time.April:
		return day.Day() >= 20
	case time.October:
		return day.Day() <= 10
	default:
		return false
	}
}
