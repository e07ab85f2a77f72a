// scheduler запускает прогоны пайплайна с настроенным периодом.
// Наложившиеся запуски коалесцируются: пока прогон в полёте, новые тики
// и ручные запросы отбрасываются.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/savelevaa/tick-monitor/internal/pkg/log"
)

// Job — один прогон пайплайна.
type Job func(ctx context.Context)

// Scheduler — долгоживущий цикл периодических прогонов.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	job      Job

	inFlight atomic.Bool
	wg       sync.WaitGroup
	kick     chan struct{}
}

// New создаёт планировщик. grace — сколько ждать in-flight прогон при остановке.
func New(interval, grace time.Duration, job Job) *Scheduler {
	return &Scheduler{
		interval: interval,
		grace:    grace,
		job:      job,
		kick:     make(chan struct{}, 1),
	}
}

// Trigger просит внеплановый прогон и возвращается сразу.
// false — прогон уже идёт или запрос уже в очереди (коалесценция).
func (s *Scheduler) Trigger() bool {
	if s.inFlight.Load() {
		return false
	}
	select {
	case s.kick <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start блокируется до отмены ctx: первый прогон сразу, дальше по тикам
// и ручным запросам. После отмены новые прогоны не стартуют; in-flight
// прогон ожидается не дольше grace, затем принудительно бросается.
func (s *Scheduler) Start(ctx context.Context) {
	const op = "scheduler.Start"

	lg := log.From(ctx)
	lg.Info("scheduler_start",
		slog.String("op", op),
		slog.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.launch(ctx)

	for {
		select {
		case <-ctx.Done():
			s.waitWithGrace(lg)
			lg.Info("scheduler_stop", slog.String("op", op))
			return
		case <-ticker.C:
			s.launch(ctx)
		case <-s.kick:
			s.launch(ctx)
		}
	}
}

// launch запускает прогон, если предыдущий завершился; иначе тик коалесцируется.
// Паника прогона гасится здесь: планировщик переживает любой прогон.
func (s *Scheduler) launch(ctx context.Context) {
	lg := log.From(ctx)

	if !s.inFlight.CompareAndSwap(false, true) {
		lg.Info("scheduler_run_coalesced")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				lg.Error("scheduler_run_panic", slog.Any("panic", r))
			}
		}()

		s.job(ctx)
	}()
}

// waitWithGrace ждёт завершения in-flight прогона не дольше grace.
func (s *Scheduler) waitWithGrace(lg *slog.Logger) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.grace):
		lg.Warn("scheduler_grace_exceeded", slog.Duration("grace", s.grace))
	}
}
