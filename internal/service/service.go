// service содержит бизнес-логику монитора: пайплайн сбора данных
// и операции чтения для слоя представления. Транспорт (HTTP-маршруты,
// сериализация) — забота внешнего слоя.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/extract"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
	"github.com/savelevaa/tick-monitor/internal/storage"
)

// Service — бизнес-логика монитора.
type Service struct {
	storage    storage.Storage
	cfg        config.Config
	extractor  *extract.Extractor
	thresholds models.RiskThresholds

	// now подменяется в тестах.
	now func() time.Time

	// trigger запускает внеплановый прогон пайплайна; проставляется
	// при сборке приложения (планировщик создаётся позже сервиса).
	triggerMu sync.RWMutex
	trigger   func() bool

	// Кэш прогноза, обновляемый асинхронно после успешного прогона.
	forecastMu   sync.RWMutex
	forecast2026 []models.ForecastPoint
}

// New создает новый экземпляр Service.
func New(store storage.Storage, cfg config.Config) *Service {
	return &Service{
		storage:    store,
		cfg:        cfg,
		extractor:  extract.New(nil),
		thresholds: cfg.Thresholds(),
		now:        time.Now,
	}
}

// SetTrigger подключает запуск внепланового прогона (из планировщика).
func (s *Service) SetTrigger(trigger func() bool) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	s.trigger = trigger
}

// TriggerUpdate запускает внеплановое обновление и возвращается сразу.
// false — прогон уже идёт (запрос скоалесцирован) или планировщик не подключён.
func (s *Service) TriggerUpdate() bool {
	s.triggerMu.RLock()
	trigger := s.trigger
	s.triggerMu.RUnlock()

	if trigger == nil {
		return false
	}
	return trigger()
}

// RefreshForecastAsync пересчитывает прогноз в фоне после прогона.
// Сбой пересчёта не влияет на пайплайн: горутина закрыта recover.
func (s *Service) RefreshForecastAsync(ctx context.Context) {
	lg := log.From(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				lg.Error("forecast_refresh_panic", slog.Any("panic", r))
			}
		}()

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()

		points, err := s.computeForecast2026(refreshCtx)
		if err != nil {
			lg.Warn("forecast_refresh_failed", slog.String("err", err.Error()))
			return
		}

		s.forecastMu.Lock()
		s.forecast2026 = points
		s.forecastMu.Unlock()

		lg.Info("forecast_refreshed", slog.Int("points", len(points)))
	}()
}
