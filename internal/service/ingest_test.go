package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/sources"
	"github.com/savelevaa/tick-monitor/internal/validate"
)

// Сквозные тесты пайплайна на httptest-источниках:
//  - базовый сценарий: статья -> нормализованная запись в хранилище;
//  - дедупликация по URL при повторном прогоне с обновлённым телом;
//  - отклонение внесезонных записей с количеством;
//  - изоляция сбоя источника: второй источник дорабатывает.

// pipelineConfig собирает конфиг с одним включённым telegram-источником,
// указывающим на тестовый сервер.
func pipelineConfig(telegramURL string) config.Config {
	cfg := config.Config{}
	cfg.Parsing.RetryCount = 1
	cfg.Parsing.RetryDelay = time.Millisecond
	cfg.Parsing.Timeout = time.Second
	cfg.Parsing.SourceTimeout = 5 * time.Second
	cfg.Parsing.Sources.Telegram = config.SourceConfig{
		Enabled:  true,
		URL:      telegramURL,
		MaxItems: 50,
	}
	cfg.Risk.Low.Threshold = 50
	cfg.Risk.Moderate.Threshold = 100
	cfg.Risk.High.Threshold = 150
	return cfg
}

func telegramMessage(text, datetime, href string) string {
	return fmt.Sprintf(`
<div class="tgme_widget_message">
  <div class="tgme_widget_message_text">%s</div>
  <a class="tgme_widget_message_date" href="%s">
    <time datetime="%s">t</time>
  </a>
</div>`, text, href, datetime)
}

func TestRunPipeline_BasicIngest(t *testing.T) {
	t.Parallel()

	page := "<html><body>" + telegramMessage(
		"В Тюмени зарегистрировано 73 обращения по поводу укусов клещей",
		"2024-06-15T10:00:00+05:00",
		"https://t.me/ch/1",
	) + "</body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	store := newMemStorage()
	svc := New(store, pipelineConfig(srv.URL))
	svc.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }

	summary := svc.RunPipeline(context.Background())
	require.Len(t, summary.Outcomes, 1)

	outcome := summary.Outcomes[0]
	require.NoError(t, outcome.Err)
	require.Equal(t, sources.TagTelegram, outcome.Source)
	require.Equal(t, 1, outcome.Inserted)
	require.Zero(t, outcome.Updated)

	rows := store.snapshot()
	require.Len(t, rows, 1)

	rec := rows[0]
	require.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), rec.Date)
	require.Equal(t, 73, rec.Cases)
	require.Equal(t, models.RiskModerate, rec.RiskLevel)
	require.Equal(t, "Тюмень", rec.Location)
	require.Equal(t, sources.TagTelegram, rec.Source)
	require.False(t, rec.FirstSeenAt.IsZero())
	require.Equal(t, rec.FirstSeenAt, rec.LastUpdatedAt)
}

func TestRunPipeline_DedupByURLOnRerun(t *testing.T) {
	t.Parallel()

	// Второй прогон отдаёт то же сообщение с обновлённым количеством.
	var body atomic.Value
	body.Store("<html><body>" + telegramMessage(
		"За сутки 73 укуса клещей",
		"2024-06-15T10:00:00+05:00",
		"https://t.me/ch/7",
	) + "</body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body.Load().(string))
	}))
	t.Cleanup(srv.Close)

	store := newMemStorage()
	svc := New(store, pipelineConfig(srv.URL))

	clock := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	first := svc.RunPipeline(context.Background())
	require.Equal(t, 1, first.Outcomes[0].Inserted)

	firstRows := store.snapshot()
	require.Len(t, firstRows, 1)
	firstUpdated := firstRows[0].LastUpdatedAt

	// Обновлённое тело, часы ушли вперёд.
	body.Store("<html><body>" + telegramMessage(
		"За сутки 80 укусов клещей",
		"2024-06-15T10:00:00+05:00",
		"https://t.me/ch/7",
	) + "</body></html>")
	clock = clock.Add(time.Hour)

	second := svc.RunPipeline(context.Background())
	require.Equal(t, 0, second.Outcomes[0].Inserted)
	require.Equal(t, 1, second.Outcomes[0].Updated)

	rows := store.snapshot()
	require.Len(t, rows, 1, "повторная загрузка того же URL не добавляет строк")
	require.Equal(t, 80, rows[0].Cases)
	require.True(t, rows[0].LastUpdatedAt.After(firstUpdated))
}

func TestRunPipeline_OffSeasonRejected(t *testing.T) {
	t.Parallel()

	page := "<html><body>" + telegramMessage(
		"Зимой зафиксировано 25 укусов клещей",
		"2024-01-15T10:00:00+05:00",
		"https://t.me/ch/2",
	) + "</body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	store := newMemStorage()
	svc := New(store, pipelineConfig(srv.URL))
	svc.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }

	summary := svc.RunPipeline(context.Background())

	outcome := summary.Outcomes[0]
	require.Zero(t, outcome.Inserted)
	require.Equal(t, 1, outcome.Rejected[validate.OffSeasonWithCases])
	require.Empty(t, store.snapshot(), "внесезонная запись с количеством не сохраняется")
}

func TestRunPipeline_SourceFailureIsolated(t *testing.T) {
	t.Parallel()

	// Telegram отвечает, RSS — нет: прогон всё равно сохраняет telegram-данные.
	page := "<html><body>" + telegramMessage(
		"Клещи: 5 обращений за сутки",
		"2024-06-20T10:00:00+05:00",
		"https://t.me/ch/3",
	) + "</body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(deadSrv.Close)

	cfg := pipelineConfig(srv.URL)
	cfg.Parsing.Sources.RSS = config.SourceConfig{
		Enabled:  true,
		RSSURL:   deadSrv.URL,
		MaxItems: 10,
	}

	store := newMemStorage()
	svc := New(store, cfg)
	svc.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }

	summary := svc.RunPipeline(context.Background())
	require.Len(t, summary.Outcomes, 2)

	byName := make(map[string]SourceOutcome)
	for _, o := range summary.Outcomes {
		byName[o.Source] = o
	}

	require.Error(t, byName[sources.TagRSS].Err)
	require.NoError(t, byName[sources.TagTelegram].Err)
	require.Equal(t, 1, byName[sources.TagTelegram].Inserted)
	require.Len(t, store.snapshot(), 1)
}

func TestRunPipeline_StoreFailureMarksSource(t *testing.T) {
	t.Parallel()

	page := "<html><body>" + telegramMessage(
		"Клещи: 5 обращений за сутки",
		"2024-06-20T10:00:00+05:00",
		"https://t.me/ch/4",
	) + "</body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	store := newMemStorage()
	store.saveErr = fmt.Errorf("connection lost")

	svc := New(store, pipelineConfig(srv.URL))
	svc.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }

	summary := svc.RunPipeline(context.Background())

	outcome := summary.Outcomes[0]
	require.Error(t, outcome.Err)
	require.Zero(t, outcome.Inserted, "после отката счётчики обнуляются")
	require.Empty(t, store.snapshot())
}

func TestTriggerUpdate(t *testing.T) {
	t.Parallel()

	svc := New(newMemStorage(), config.Config{})

	// Без планировщика — false.
	require.False(t, svc.TriggerUpdate())

	var called atomic.Bool
	svc.SetTrigger(func() bool {
		called.Store(true)
		return true
	})

	require.True(t, svc.TriggerUpdate())
	require.True(t, called.Load())
}
