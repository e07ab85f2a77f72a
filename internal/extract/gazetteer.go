package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Locality — населённый пункт Тюменской области с координатами для карты.
type Locality struct {
	Name string
	Lat  float64
	Lng  float64
}

// gazetteer — фиксированный справочник населённых пунктов области.
// Порядок имеет значение: при поиске побеждает первое вхождение.
var gazetteer = []Locality{
	{"Тюмень", 57.1522, 65.5272},
	{"Тобольск", 58.1981, 68.2597},
	{"Ишим", 56.1125, 69.4903},
	{"Ялуторовск", 56.6517, 66.3128},
	{"Заводоуковск", 56.5014, 66.5514},
	{"Голышманово", 56.3989, 68.3697},
	{"Вагай", 57.9353, 69.0278},
	{"Упорово", 56.3189, 66.2708},
	{"Омутинское", 56.4783, 67.6556},
	{"Армизонское", 56.0903, 67.7014},
	{"Бердюжье", 55.8069, 68.5397},
	{"Абатское", 56.2797, 70.4500},
	{"Викулово", 56.8167, 70.6167},
	{"Сорокино", 56.1289, 67.3944},
	{"Юргинское", 56.8250, 67.3958},
	{"Нижняя Тавда", 57.6733, 66.1744},
	{"Ярково", 57.4103, 67.0664},
	{"Казанское", 55.6417, 69.2333},
	{"Исетское", 56.4856, 65.3278},
	{"Сладково", 55.5278, 70.3389},
}

// regionCenter — центр Тюменской области, запасные координаты для
// локалитетов без точного совпадения в справочнике.
var regionCenter = Locality{Name: "Тюменская область", Lat: 57.0, Lng: 65.5}

// reDistrict вылавливает упоминание района/округа, когда справочник молчит.
var reDistrict = regexp.MustCompile(`(?i)([\p{L}]+)\s*(?:район|округ|муниципалитет)`)

// FindLocality ищет населённый пункт в тексте.
// Сначала справочник (без учёта регистра, первый найденный побеждает):
// имя ищется подстрокой, а однословное имя — ещё и в падежной форме
// (основа без конечных гласных/«ь» плюс не более двух букв: «Тюмени» -> «Тюмень»).
// Затем паттерн «<слово> район/округ/муниципалитет».
// Пустая строка — локация не распознана.
func FindLocality(text string) string {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, loc := range gazetteer {
		name := strings.ToLower(loc.Name)
		if strings.Contains(lower, name) {
			return loc.Name
		}
		stem := strings.TrimRight(name, "аеиоуыьэюя")
		for _, w := range words {
			if strings.HasPrefix(w, stem) && utf8.RuneCountInString(w)-utf8.RuneCountInString(stem) <= 2 {
				return loc.Name
			}
		}
	}

	if m := reDistrict.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	return ""
}

// Coordinates возвращает координаты населённого пункта.
// Частичное совпадение допускается в обе стороны («Тобольский район» -> «Тобольск»);
// при полном промахе возвращается центр области.
func Coordinates(location string) (lat, lng float64) {
	for _, loc := range gazetteer {
		if loc.Name == location {
			return loc.Lat, loc.Lng
		}
	}

	lower := strings.ToLower(strings.TrimSpace(location))
	if lower == "" {
		return regionCenter.Lat, regionCenter.Lng
	}
	for _, loc := range gazetteer {
		name := strings.ToLower(loc.Name)
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return loc.Lat, loc.Lng
		}
	}

	return regionCenter.Lat, regionCenter.Lng
}
