package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/fetch"
)

// Тесты веб-источника: обход выдачи с пагинацией, дедупликация ссылок,
// загрузка статей, фильтр по ключевым словам и ограничение max_items.

func testClient() *fetch.Client {
	return fetch.New(1, time.Millisecond, time.Second)
}

const searchPage1 = `<!DOCTYPE html>
<html><body>
<div class="search-item"><a href="/content/101">Клещи атакуют</a></div>
<div class="search-item"><a href="/content/102">Про укусы</a></div>
<div class="search-item"><a href="/content/101">Дубликат ссылки</a></div>
<div class="search-item"><a href="/about/team">Нерелевантная ссылка</a></div>
</body></html>`

const searchPage2 = `<!DOCTYPE html>
<html><body>
<div class="search-item"><a href="/news/201">Ещё одна новость</a></div>
</body></html>`

func articleHTML(title, date, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head><body>
<h1>%s</h1>
<div class="news-date">%s</div>
<div class="news-detail">%s</div>
</body></html>`, title, title, date, body)
}

func newWebServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("PAGEN_1") == "2" {
			fmt.Fprint(w, searchPage2)
			return
		}
		if r.URL.Query().Get("PAGEN_1") != "" {
			fmt.Fprint(w, `<html><body>пусто</body></html>`)
			return
		}
		fmt.Fprint(w, searchPage1)
	})
	mux.HandleFunc("/content/101", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML(
			"В Тюмени зарегистрировано 73 обращения по поводу укусов клещей",
			"15.06.2024",
			"За прошедшую неделю в медицинские организации обратилось 73 жителя.",
		))
	})
	mux.HandleFunc("/content/102", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML(
			"Отчёт о заседании комиссии",
			"14.06.2024",
			"Повестка заседания без тематики.",
		))
	})
	mux.HandleFunc("/news/201", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML(
			"Энцефалит: профилактика",
			"13.06.2024",
			"Напоминаем о вакцинации против клещевого энцефалита.",
		))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWeb_FetchList(t *testing.T) {
	t.Parallel()

	srv := newWebServer(t)

	src := NewWeb(config.SourceConfig{
		Enabled:   true,
		BaseURL:   srv.URL,
		SearchURL: srv.URL + "/search/?q=%D0%BA%D0%BB%D0%B5%D1%89%D0%B8",
		MaxItems:  50,
	})
	require.Equal(t, TagWeb, src.Name())

	raws, err := src.FetchList(context.Background(), testClient())
	require.NoError(t, err)

	// Статья без ключевых слов отброшена, дубликат ссылки схлопнут.
	require.Len(t, raws, 2)

	first := raws[0]
	require.Equal(t, srv.URL+"/content/101", first.URL)
	require.Equal(t, TagWeb, first.SourceTag)
	require.Contains(t, first.TitleGuess, "73 обращения")
	require.Equal(t, "15.06.2024", first.DateText)
	require.Contains(t, first.RawText, "обратилось 73 жителя")

	second := raws[1]
	require.Equal(t, srv.URL+"/news/201", second.URL)
	require.Contains(t, second.TitleGuess, "Энцефалит")
}

func TestWeb_MaxItemsCap(t *testing.T) {
	t.Parallel()

	srv := newWebServer(t)

	src := NewWeb(config.SourceConfig{
		Enabled:   true,
		BaseURL:   srv.URL,
		SearchURL: srv.URL + "/search/?q=%D0%BA%D0%BB%D0%B5%D1%89",
		MaxItems:  1,
	})

	raws, err := src.FetchList(context.Background(), testClient())
	require.NoError(t, err)
	require.Len(t, raws, 1)
}

func TestWeb_SearchCascadeFallsBack(t *testing.T) {
	t.Parallel()

	// Поиск недоступен, но раздел новостей отвечает.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/news/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/news/301">Клещи</a></body></html>`)
	})
	mux.HandleFunc("/news/301", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML("Клещи проснулись", "01.05.2024", "Сезон укусов открыт."))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := NewWeb(config.SourceConfig{
		Enabled:  true,
		BaseURL:  srv.URL,
		MaxItems: 10,
	})

	raws, err := src.FetchList(context.Background(), testClient())
	require.NoError(t, err)
	require.Len(t, raws, 1)
	require.Equal(t, srv.URL+"/news/301", raws[0].URL)
}

func TestWeb_NoLinksIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>ничего нет</body></html>`)
	}))
	t.Cleanup(srv.Close)

	src := NewWeb(config.SourceConfig{Enabled: true, BaseURL: srv.URL, MaxItems: 10})

	_, err := src.FetchList(context.Background(), testClient())
	require.Error(t, err)
}
