package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/savelevaa/tick-monitor/internal/dedup"
	"github.com/savelevaa/tick-monitor/internal/fetch"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
	"github.com/savelevaa/tick-monitor/internal/sources"
	"github.com/savelevaa/tick-monitor/internal/storage"
	"github.com/savelevaa/tick-monitor/internal/validate"
)

// SourceOutcome — итог обработки одного источника за прогон.
type SourceOutcome struct {
	Source   string
	Fetched  int
	Inserted int
	Updated  int
	// Skipped — дубликаты внутри прогона.
	Skipped int
	// ParseErrors — кандидаты без извлекаемой даты.
	ParseErrors int
	// Rejected — отклонения валидатора по причинам.
	Rejected map[validate.Reason]int
	// Err — сбой источника целиком (сеть, транзакция).
	Err error
}

// RunSummary — сводка одного прогона пайплайна.
type RunSummary struct {
	StartedAt time.Time
	Outcomes  []SourceOutcome
}

// sourceResult — то, что воркер источника отдаёт последовательному обработчику.
type sourceResult struct {
	name string
	raws []models.RawRecord
	err  error
}

// RunPipeline выполняет один прогон: источники опрашиваются параллельно,
// извлечение/валидация/дедупликация — последовательно, запись в хранилище —
// одной транзакцией на источник. Паника в воркере изолируется: остальные
// источники дорабатывают.
func (s *Service) RunPipeline(ctx context.Context) RunSummary {
	const op = "service.RunPipeline"

	lg := log.From(ctx)
	summary := RunSummary{StartedAt: s.now().UTC()}

	enabled := sources.Enabled(s.cfg.Parsing.Sources)
	if len(enabled) == 0 {
		lg.Warn("pipeline_no_sources", slog.String("op", op))
		return summary
	}

	client := fetch.New(s.cfg.Parsing.RetryCount, s.cfg.Parsing.RetryDelay, s.cfg.Parsing.Timeout)

	// Канал без буфера: воркеры отдают результат напрямую обработчику
	// и блокируются, пока он занят. Неограниченных очередей в пайплайне нет.
	results := make(chan sourceResult)

	for _, src := range enabled {
		go func(src sources.Source) {
			res := sourceResult{name: src.Name()}

			defer func() {
				if r := recover(); r != nil {
					res.err = fmt.Errorf("source panic: %v", r)
					res.raws = nil
				}
				select {
				case results <- res:
				case <-ctx.Done():
				}
			}()

			srcCtx, cancel := context.WithTimeout(ctx, s.cfg.Parsing.SourceTimeout)
			defer cancel()

			res.raws, res.err = src.FetchList(srcCtx, client)
		}(src)
	}

	deduper := dedup.New()
	for range enabled {
		select {
		case <-ctx.Done():
			lg.Warn("pipeline_cancelled", slog.String("op", op))
			return summary
		case res := <-results:
			outcome := s.processSource(ctx, deduper, res)
			summary.Outcomes = append(summary.Outcomes, outcome)
		}
	}

	s.logSummary(ctx, summary)
	return summary
}

// processSource проводит кандидатов одного источника через
// извлечение -> валидацию -> дедупликацию и пишет пачку одной транзакцией.
func (s *Service) processSource(ctx context.Context, deduper *dedup.Deduper, res sourceResult) SourceOutcome {
	const op = "service.processSource"

	lg := log.From(ctx)
	outcome := SourceOutcome{
		Source:   res.name,
		Fetched:  len(res.raws),
		Rejected: make(map[validate.Reason]int),
		Err:      res.err,
	}

	now := s.now().UTC()
	var inserts []models.Record
	var updates []storage.RecordUpdate

	for _, raw := range res.raws {
		rec, err := s.extractor.Extract(raw)
		if err != nil {
			outcome.ParseErrors++
			continue
		}
		rec.RiskLevel = s.thresholds.RiskFor(rec.Cases)

		if issues := validate.Check(rec, now); len(issues) > 0 {
			outcome.Rejected[issues[0]]++
			continue
		}

		decision, err := deduper.Decide(ctx, s.storage, rec)
		if err != nil {
			outcome.Err = err
			break
		}

		switch decision.Action {
		case dedup.Skip:
			outcome.Skipped++
		case dedup.Update:
			updates = append(updates, storage.RecordUpdate{
				ID:        decision.Existing.ID,
				Cases:     rec.Cases,
				Risk:      rec.RiskLevel,
				Content:   rec.Content,
				URL:       rec.URL,
				Location:  rec.Location,
				UpdatedAt: now,
			})
			outcome.Updated++
		case dedup.Insert:
			rec.FirstSeenAt = now
			rec.LastUpdatedAt = now
			inserts = append(inserts, rec)
			outcome.Inserted++
		}
	}

	if len(inserts) > 0 || len(updates) > 0 {
		if err := s.storage.SaveBatch(ctx, inserts, updates); err != nil {
			// Транзакция источника откатилась целиком.
			lg.Error("source_batch_failed",
				slog.String("op", op),
				slog.String("source", res.name),
				slog.String("err", err.Error()),
			)
			outcome.Err = err
			outcome.Inserted = 0
			outcome.Updated = 0
		}
	}

	return outcome
}

// logSummary пишет сводку прогона: счётчики и причины отказов по источникам.
func (s *Service) logSummary(ctx context.Context, summary RunSummary) {
	lg := log.From(ctx)

	for _, o := range summary.Outcomes {
		attrs := []any{
			slog.String("source", o.Source),
			slog.Int("fetched", o.Fetched),
			slog.Int("inserted", o.Inserted),
			slog.Int("updated", o.Updated),
			slog.Int("skipped_duplicates", o.Skipped),
			slog.Int("parse_errors", o.ParseErrors),
		}
		for reason, count := range o.Rejected {
			attrs = append(attrs, slog.Int("rejected_"+string(reason), count))
		}
		if o.Err != nil {
			attrs = append(attrs, slog.String("err", o.Err.Error()))
			lg.Warn("source_summary", attrs...)
			continue
		}
		lg.Info("source_summary", attrs...)
	}
}
