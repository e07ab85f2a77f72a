// storage определяет контракты доступа к БД монитора.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/savelevaa/tick-monitor/internal/models"
)

// ErrConflict — конфликт уникальности (например, по url).
var ErrConflict = errors.New("conflict")

// RecordUpdate — изменяемые поля существующей записи.
// Дата, источник и заголовок после вставки не меняются.
type RecordUpdate struct {
	ID        uuid.UUID
	Cases     int
	Risk      models.RiskLevel
	Content   string
	URL       string
	Location  string
	UpdatedAt time.Time
}

// RecordStorage описывает операции над записями наблюдений.
//
// Методы чтения возвращают (nil, nil), когда записи нет: отсутствие —
// штатный исход для дедупликации, не ошибка.
type RecordStorage interface {
	// SaveBatch применяет вставки и обновления одного источника
	// в одной транзакции. Частичный сбой откатывает всю пачку.
	SaveBatch(ctx context.Context, inserts []models.Record, updates []RecordUpdate) error
	// RecordByURL возвращает запись с данным URL или nil.
	RecordByURL(ctx context.Context, url string) (*models.Record, error)
	// SimilarRecord ищет запись того же источника с тем же заголовком
	// (в нижнем регистре) в пределах dayTolerance дней от date,
	// просматривая окно ±dedup.SimilarWindowDays.
	SimilarRecord(ctx context.Context, source, titleKey string, date time.Time, dayTolerance int) (*models.Record, error)
	// RecordsInRange возвращает записи диапазона дат, новые сначала.
	RecordsInRange(ctx context.Context, from, to time.Time) ([]models.Record, error)
	// RecentRecords возвращает не более limit последних записей, новые сначала.
	RecentRecords(ctx context.Context, limit int) ([]models.Record, error)
	// AllRecords возвращает все записи, старые сначала.
	AllRecords(ctx context.Context) ([]models.Record, error)
	// NearestRecord возвращает запись с максимальной датой, не превышающей
	// target, или nil.
	NearestRecord(ctx context.Context, target time.Time) (*models.Record, error)
	// GroupByISOWeek агрегирует записи по ISO-неделям на стороне БД,
	// сортировка по дате начала корзины.
	GroupByISOWeek(ctx context.Context, thresholds models.RiskThresholds) ([]models.WeekBucket, error)
}

// Storage задаёт контракт доступа к хранилищу монитора.
type Storage interface {
	RecordStorage
	Close()
}
