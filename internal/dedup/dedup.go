// dedup решает судьбу кандидата: пропустить, обновить существующую запись
// или вставить новую. Решения зависят только от сохранённого состояния и
// множества отпечатков текущего прогона, поэтому пайплайн коммутативен
// относительно порядка источников.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/savelevaa/tick-monitor/internal/models"
)

// SimilarWindowDays — ширина окна поиска похожей записи вокруг даты кандидата.
const SimilarWindowDays = 7

// Lookup — чтения хранилища, нужные для принятия решения.
type Lookup interface {
	// RecordByURL возвращает запись с данным URL или nil.
	RecordByURL(ctx context.Context, url string) (*models.Record, error)
	// SimilarRecord ищет запись с тем же источником и заголовком (без учёта
	// регистра), датированную в пределах dayTolerance дней от date,
	// просматривая окно ±SimilarWindowDays дней.
	SimilarRecord(ctx context.Context, source, titleKey string, date time.Time, dayTolerance int) (*models.Record, error)
}

// Action — решение дедупликатора.
type Action int

const (
	// Skip — отпечаток уже встречался в этом прогоне.
	Skip Action = iota
	// Insert — новой записи нет ни по URL, ни по (source, title, ±1 день).
	Insert
	// Update — найдена существующая запись, обновляются изменяемые поля.
	Update
)

// Decision — итог для одного кандидата.
type Decision struct {
	Action   Action
	Existing *models.Record
}

// Deduper хранит отпечатки, увиденные в текущем прогоне пайплайна.
// Не потокобезопасен: кандидаты проходят через него последовательно.
type Deduper struct {
	seen map[string]struct{}
}

// New создаёт дедупликатор одного прогона.
func New() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Fingerprint — стабильный отпечаток содержимого кандидата:
// дата, обрезанный заголовок в нижнем регистре, источник, URL.
func Fingerprint(rec models.Record) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s",
		rec.Date.Format("2006-01-02"),
		rec.TitleKey(),
		rec.Source,
		rec.URL,
	)))
	return hex.EncodeToString(sum[:])
}

// Decide принимает решение для кандидата.
//
// Порядок:
//  1. отпечаток уже встречался в прогоне -> Skip;
//  2. существует запись с тем же непустым URL -> Update;
//  3. существует запись с тем же источником и заголовком в пределах ±1 дня -> Update;
//  4. иначе -> Insert.
//
// Отпечаток помечается увиденным независимо от исхода.
func (d *Deduper) Decide(ctx context.Context, lookup Lookup, rec models.Record) (Decision, error) {
	const op = "dedup.Decide"

	fp := Fingerprint(rec)
	if _, ok := d.seen[fp]; ok {
		return Decision{Action: Skip}, nil
	}
	d.seen[fp] = struct{}{}

	if rec.URL != "" {
		existing, err := lookup.RecordByURL(ctx, rec.URL)
		if err != nil {
			return Decision{}, fmt.Errorf("%s: by url: %w", op, err)
		}
		if existing != nil {
			return Decision{Action: Update, Existing: existing}, nil
		}
	}

	existing, err := lookup.SimilarRecord(ctx, rec.Source, rec.TitleKey(), rec.Date, 1)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: similar: %w", op, err)
	}
	if existing != nil {
		return Decision{Action: Update, Existing: existing}, nil
	}

	return Decision{Action: Insert}, nil
}
