package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Порядок разрешения даты (первый успех побеждает):
//  1. нечёткий разбор подписи даты (DD.MM.YYYY, ISO, русские месяцы, datetime-атрибут);
//  2. сканирование первых 2000 символов текста — паттерн засчитывается, если рядом
//     есть слово-маркер даты или год паттерна лежит в [2020, текущий];
//  3. путь URL вида /YYYY/MM/DD/;
//  4. дата публикации из метаданных источника (RSS).

var (
	reEuroDate = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
	reISODate  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	reRuDate   = regexp.MustCompile(`(?i)(\d{1,2})\s+(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)\s+(\d{4})`)
	reURLDate  = regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`)
)

// ruMonths — родительный падеж месяца -> номер.
var ruMonths = map[string]time.Month{
	"января": time.January, "февраля": time.February, "марта": time.March,
	"апреля": time.April, "мая": time.May, "июня": time.June,
	"июля": time.July, "августа": time.August, "сентября": time.September,
	"октября": time.October, "ноября": time.November, "декабря": time.December,
}

// dateMarkers — слова, рядом с которыми число в теле текста считается датой
// публикации, а не произвольным числом.
var dateMarkers = []string{"дата", "опубликовано", "от"}

// bodyScanLimit — сколько символов тела сканируется в поисках даты.
const bodyScanLimit = 2000

// parseDayText извлекает календарный день из короткой подписи даты.
func parseDayText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// Машинные форматы (datetime-атрибуты Telegram/VK, ISO-метки).
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}

	if m := reEuroDate.FindStringSubmatch(s); m != nil {
		return makeDay(m[3], m[2], m[1])
	}
	if m := reISODate.FindStringSubmatch(s); m != nil {
		return makeDay(m[1], m[2], m[3])
	}
	if m := reRuDate.FindStringSubmatch(s); m != nil {
		month, ok := ruMonths[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, false
		}
		y, _ := strconv.Atoi(m[3])
		d, _ := strconv.Atoi(m[1])
		return validDay(y, month, d)
	}

	return time.Time{}, false
}

// scanBodyForDate ищет дату в начале текста. Совпадение принимается, если
// в окружении есть слово-маркер или год попадает в [2020, текущий].
func scanBodyForDate(body string, now time.Time) (time.Time, bool) {
	runes := []rune(body)
	if len(runes) > bodyScanLimit {
		body = string(runes[:bodyScanLimit])
	}

	type match struct {
		day   time.Time
		start int
	}

	var candidates []match
	for _, re := range []*regexp.Regexp{reEuroDate, reISODate, reRuDate} {
		for _, loc := range re.FindAllStringSubmatchIndex(body, -1) {
			m := re.FindStringSubmatch(body[loc[0]:loc[1]])
			var d time.Time
			var ok bool
			switch re {
			case reEuroDate:
				d, ok = makeDay(m[3], m[2], m[1])
			case reISODate:
				d, ok = makeDay(m[1], m[2], m[3])
			default:
				month, found := ruMonths[strings.ToLower(m[2])]
				if !found {
					continue
				}
				y, _ := strconv.Atoi(m[3])
				dd, _ := strconv.Atoi(m[1])
				d, ok = validDay(y, month, dd)
			}
			if ok {
				candidates = append(candidates, match{day: d, start: loc[0]})
			}
		}
	}

	for _, c := range candidates {
		if hasDateMarker(body, c.start) || (c.day.Year() >= 2020 && c.day.Year() <= now.Year()) {
			return c.day, true
		}
	}

	return time.Time{}, false
}

// hasDateMarker проверяет наличие слова-маркера в 40 символах перед совпадением.
func hasDateMarker(body string, start int) bool {
	from := start
	for n := 0; n < 40 && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(body[:from])
		from -= size
	}
	ctx := strings.ToLower(body[from:start])
	for _, w := range dateMarkers {
		if strings.Contains(ctx, w) {
			return true
		}
	}
	return false
}

// dateFromURL извлекает дату из пути вида /YYYY/MM/DD/.
func dateFromURL(rawURL string) (time.Time, bool) {
	m := reURLDate.FindStringSubmatch(rawURL)
	if m == nil {
		return time.Time{}, false
	}
	return makeDay(m[1], m[2], m[3])
}

func makeDay(y, m, d string) (time.Time, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	dd, _ := strconv.Atoi(d)
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	return validDay(year, time.Month(month), dd)
}

// validDay собирает дату и отклоняет перелив (31.02 и т.п.).
func validDay(year int, month time.Month, d int) (time.Time, bool) {
	if d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
