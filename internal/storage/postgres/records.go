package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/savelevaa/tick-monitor/internal/dedup"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/storage"
)

// recordColumns — общий список колонок для выборок записей.
const recordColumns = `id, date, cases, risk_level, source, title, content, url, location, first_seen_at, last_updated_at`

// SaveBatch применяет вставки и обновления одного источника в одной
// транзакции: частичный сбой источника не должен оставлять половину пачки.
func (s *Storage) SaveBatch(ctx context.Context, inserts []models.Record, updates []storage.RecordUpdate) error {
	const op = "storage.postgres.SaveBatch"

	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range inserts {
		id := rec.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
		INSERT INTO records (id, date, cases, risk_level, source, title, content, url, location, first_seen_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, id, rec.Date, rec.Cases, string(rec.RiskLevel), rec.Source, rec.Title, rec.Content,
			rec.URL, rec.Location, rec.FirstSeenAt.UTC(), rec.LastUpdatedAt.UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%s: insert: %w", op, storage.ErrConflict)
			}
			return fmt.Errorf("%s: insert: %w", op, err)
		}
	}

	for _, upd := range updates {
		_, err := tx.Exec(ctx, `
		UPDATE records
		SET cases = $2,
			risk_level = $3,
			content = CASE WHEN $4 <> '' THEN $4 ELSE content END,
			url = CASE WHEN $5 <> '' THEN $5 ELSE url END,
			location = CASE WHEN $6 <> '' THEN $6 ELSE location END,
			last_updated_at = $7
		WHERE id = $1
		`, upd.ID, upd.Cases, string(upd.Risk), upd.Content, upd.URL, upd.Location, upd.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("%s: update: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// RecordByURL возвращает запись с данным URL или nil.
func (s *Storage) RecordByURL(ctx context.Context, url string) (*models.Record, error) {
	const op = "storage.postgres.RecordByURL"

	if url == "" {
		return nil, nil
	}

	row := s.db.QueryRow(ctx, `
	SELECT `+recordColumns+`
	FROM records
	WHERE url = $1
	`, url)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// SimilarRecord ищет запись того же источника с тем же заголовком
// в пределах dayTolerance дней от date, просматривая окно ±7 дней.
func (s *Storage) SimilarRecord(ctx context.Context, source, titleKey string, date time.Time, dayTolerance int) (*models.Record, error) {
	const op = "storage.postgres.SimilarRecord"

	from := date.AddDate(0, 0, -dedup.SimilarWindowDays)
	to := date.AddDate(0, 0, dedup.SimilarWindowDays)

	row := s.db.QueryRow(ctx, `
	SELECT `+recordColumns+`
	FROM records
	WHERE source = $1
	  AND lower(trim(title)) = $2
	  AND date BETWEEN $3 AND $4
	  AND abs(date - $5::date) <= $6
	ORDER BY abs(date - $5::date) ASC
	LIMIT 1
	`, source, titleKey, from, to, date, dayTolerance)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// RecordsInRange возвращает записи диапазона дат, новые сначала.
func (s *Storage) RecordsInRange(ctx context.Context, from, to time.Time) ([]models.Record, error) {
	const op = "storage.postgres.RecordsInRange"

	rows, err := s.db.Query(ctx, `
	SELECT `+recordColumns+`
	FROM records
	WHERE date >= $1 AND date <= $2
	ORDER BY date DESC, id DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanRecords(rows, op)
}

// RecentRecords возвращает не более limit последних записей.
func (s *Storage) RecentRecords(ctx context.Context, limit int) ([]models.Record, error) {
	const op = "storage.postgres.RecentRecords"

	if limit <= 0 {
		limit = 1
	}

	rows, err := s.db.Query(ctx, `
	SELECT `+recordColumns+`
	FROM records
	ORDER BY date DESC, id DESC
	LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanRecords(rows, op)
}

// AllRecords возвращает все записи, старые сначала.
func (s *Storage) AllRecords(ctx context.Context) ([]models.Record, error) {
	const op = "storage.postgres.AllRecords"

	rows, err := s.db.Query(ctx, `
	SELECT `+recordColumns+`
	FROM records
	ORDER BY date ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanRecords(rows, op)
}

// NearestRecord возвращает запись с максимальной датой <= target или nil.
func (s *Storage) NearestRecord(ctx context.Context, target time.Time) (*models.Record, error) {
	const op = "storage.postgres.NearestRecord"

	row := s.db.QueryRow(ctx, `
	SELECT `+recordColumns+`
	FROM records
	WHERE date <= $1
	ORDER BY date DESC, id DESC
	LIMIT 1
	`, target)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// GroupByISOWeek агрегирует записи по ISO-неделям на стороне БД.
func (s *Storage) GroupByISOWeek(ctx context.Context, thresholds models.RiskThresholds) ([]models.WeekBucket, error) {
	const op = "storage.postgres.GroupByISOWeek"

	rows, err := s.db.Query(ctx, `
	SELECT EXTRACT(ISOYEAR FROM date)::int,
		EXTRACT(WEEK FROM date)::int,
		MIN(date),
		MAX(date),
		COALESCE(SUM(cases), 0)::int,
		COUNT(*)::int
	FROM records
	GROUP BY 1, 2
	ORDER BY MIN(date) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.WeekBucket
	for rows.Next() {
		var b models.WeekBucket
		if err := rows.Scan(&b.ISOYear, &b.ISOWeek, &b.StartDate, &b.EndDate, &b.Cases, &b.RecordCount); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		b.StartDate = models.Day(b.StartDate)
		b.EndDate = models.Day(b.EndDate)
		b.Risk = thresholds.RiskFor(b.Cases)
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}

	return out, nil
}

// scanRecord читает одну запись из строки результата.
func scanRecord(row pgx.Row) (*models.Record, error) {
	var rec models.Record
	var risk string
	if err := row.Scan(
		&rec.ID,
		&rec.Date,
		&rec.Cases,
		&risk,
		&rec.Source,
		&rec.Title,
		&rec.Content,
		&rec.URL,
		&rec.Location,
		&rec.FirstSeenAt,
		&rec.LastUpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.RiskLevel = models.RiskLevel(risk)
	rec.Date = models.Day(rec.Date)
	rec.FirstSeenAt = rec.FirstSeenAt.UTC()
	rec.LastUpdatedAt = rec.LastUpdatedAt.UTC()

	return &rec, nil
}

func scanRecords(rows pgx.Rows, op string) ([]models.Record, error) {
	var out []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}
	return out, nil
}
