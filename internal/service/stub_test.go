package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savelevaa/tick-monitor/internal/aggregate"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/storage"
)

// memStorage — хранилище в памяти для тестов сервиса.
// Повторяет контракт storage.Storage поверх среза записей.
type memStorage struct {
	mu      sync.Mutex
	rows    []models.Record
	saveErr error
}

var _ storage.Storage = (*memStorage)(nil)

func newMemStorage() *memStorage {
	return &memStorage{}
}

func (m *memStorage) seed(recs ...models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		m.rows = append(m.rows, rec)
	}
}

func (m *memStorage) snapshot() []models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Record, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *memStorage) SaveBatch(_ context.Context, inserts []models.Record, updates []storage.RecordUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	for _, rec := range inserts {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		m.rows = append(m.rows, rec)
	}

	for _, upd := range updates {
		for i := range m.rows {
			if m.rows[i].ID != upd.ID {
				continue
			}
			m.rows[i].Cases = upd.Cases
			m.rows[i].RiskLevel = upd.Risk
			if upd.Content != "" {
				m.rows[i].Content = upd.Content
			}
			if upd.URL != "" {
				m.rows[i].URL = upd.URL
			}
			if upd.Location != "" {
				m.rows[i].Location = upd.Location
			}
			m.rows[i].LastUpdatedAt = upd.UpdatedAt
			break
		}
	}

	return nil
}

func (m *memStorage) RecordByURL(_ context.Context, url string) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if url == "" {
		return nil, nil
	}
	for i := range m.rows {
		if m.rows[i].URL == url {
			rec := m.rows[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memStorage) SimilarRecord(_ context.Context, source, titleKey string, date time.Time, dayTolerance int) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].Source != source || m.rows[i].TitleKey() != titleKey {
			continue
		}
		diff := int(m.rows[i].Date.Sub(date).Hours() / 24)
		if diff < 0 {
			diff = -diff
		}
		if diff <= dayTolerance {
			rec := m.rows[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memStorage) RecordsInRange(_ context.Context, from, to time.Time) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Record
	for _, rec := range m.rows {
		if !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memStorage) RecentRecords(_ context.Context, limit int) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Record, len(m.rows))
	copy(out, m.rows)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStorage) AllRecords(_ context.Context) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Record, len(m.rows))
	copy(out, m.rows)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStorage) NearestRecord(_ context.Context, target time.Time) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *models.Record
	for i := range m.rows {
		if m.rows[i].Date.After(target) {
			continue
		}
		if best == nil || m.rows[i].Date.After(best.Date) {
			rec := m.rows[i]
			best = &rec
		}
	}
	return best, nil
}

func (m *memStorage) GroupByISOWeek(_ context.Context, thresholds models.RiskThresholds) ([]models.WeekBucket, error) {
	return aggregate.GroupByISOWeek(m.snapshot(), thresholds), nil
}

func (m *memStorage) Close() {}
