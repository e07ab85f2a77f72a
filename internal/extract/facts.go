// extract достаёт проверяемые факты — дату, количество случаев, локацию —
// из сырого текста кандидата. Русская проза источников полуструктурирована,
// поэтому извлечение каскадное, с деградацией до «упоминание без количества».
package extract

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/savelevaa/tick-monitor/internal/models"
)

// ErrNoDate — ни один шаг каскада не дал пригодной даты.
// Записи только с будущими или до-2020 датами отбрасываются, не корректируются.
var ErrNoDate = errors.New("no usable date")

// casePatterns — каскад паттернов количества случаев, в порядке убывания
// специфичности. Порядок фиксирован; новые идиомы добавляются в конец.
var casePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)зарегистрировано\D*(\d+)\D*обращ`),
	regexp.MustCompile(`(?i)выявлено\D*(\d+)\D*случа`),
	regexp.MustCompile(`(?i)(\d+)\D*укус`),
	regexp.MustCompile(`(?i)клещ\D*(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s*(?:случа|обращени)`),
	regexp.MustCompile(`(?i)(\d+)\s*(?:человек|жител)`),
	regexp.MustCompile(`(?i)обратилось\D*(\d+)`),
	regexp.MustCompile(`(?i)поступило\D*(\d+)\D*обращ`),
	regexp.MustCompile(`(?i)(\d+)\D*пострадал`),
	regexp.MustCompile(`(?i)(\d+)\D*присасыван`),
}

// proximityKeywords — второй проход: первое число недалеко от ключевого слова.
var proximityKeywords = []string{"клещ", "укус", "обращение", "случай", "присасывание"}

var proximityRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(proximityKeywords))
	for _, kw := range proximityKeywords {
		out = append(out, regexp.MustCompile(`(?i)`+kw+`[^\d]{0,50}(\d{1,4})`))
	}
	return out
}()

// Keywords — ключевые слова тематики; их наличие отличает «качественное
// упоминание» (cases=0) от нерелевантного текста.
var Keywords = []string{"клещ", "укус", "энцефалит", "присасыван"}

// KeywordsExtended дополнительно включает боррелиоз — новостные страницы
// упоминают его чаще, чем энцефалит.
var KeywordsExtended = append([]string{"боррелиоз"}, Keywords...)

// ContainsKeyword сообщает, есть ли в тексте хотя бы одно из слов.
func ContainsKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CaseCount извлекает количество случаев из текста.
// Числа вне (0, 10000] отбрасываются. 0 означает «количество не названо».
func CaseCount(text string) int {
	for _, re := range casePatterns {
		if n, ok := firstNumber(re, text); ok {
			return n
		}
	}

	for _, re := range proximityRes {
		if n, ok := firstNumber(re, text); ok {
			return n
		}
	}

	return 0
}

func firstNumber(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 || n > models.MaxCases {
		return 0, false
	}
	return n, true
}

// Extractor превращает сырых кандидатов в нормализованные записи.
type Extractor struct {
	now func() time.Time
}

// New создаёт экстрактор. clock == nil означает системные часы.
func New(clock func() time.Time) *Extractor {
	if clock == nil {
		clock = time.Now
	}
	return &Extractor{now: clock}
}

// ResolveDate проводит каскад разрешения даты для кандидата.
// Даты вне [2020-01-01, сегодня] не засчитываются, каскад продолжается.
func (e *Extractor) ResolveDate(raw models.RawRecord) (time.Time, error) {
	today := day(e.now())

	usable := func(d time.Time) bool {
		return !d.Before(models.MinDate) && !d.After(today)
	}

	if d, ok := parseDayText(raw.DateText); ok && usable(d) {
		return d, nil
	}
	if d, ok := scanBodyForDate(raw.RawText, e.now()); ok && usable(d) {
		return d, nil
	}
	if d, ok := dateFromURL(raw.URL); ok && usable(d) {
		return d, nil
	}
	if !raw.PublishedAt.IsZero() {
		if d := day(raw.PublishedAt); usable(d) {
			return d, nil
		}
	}

	return time.Time{}, ErrNoDate
}

// Extract собирает нормализованную запись из кандидата.
// Уровень риска не выставляется: это дело вызывающего, знающего пороги.
func (e *Extractor) Extract(raw models.RawRecord) (models.Record, error) {
	date, err := e.ResolveDate(raw)
	if err != nil {
		return models.Record{}, err
	}

	title := strings.TrimSpace(raw.TitleGuess)
	if title == "" {
		title = firstLine(raw.RawText)
	}

	return models.Record{
		Date:     date,
		Cases:    CaseCount(raw.RawText),
		Source:   raw.SourceTag,
		Title:    truncate(title, models.MaxTitleLen),
		Content:  truncate(strings.TrimSpace(raw.RawText), models.MaxContentLen),
		URL:      strings.TrimSpace(raw.URL),
		Location: FindLocality(raw.RawText),
	}, nil
}

// firstLine — заголовок по умолчанию: первая непустая строка текста.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
