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
)

// Тесты RSS-источника: фильтр по ключевым словам, дата публикации из
// метаданных ленты, ограничение max_items.

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Управление</title>
<item>
  <title>Клещи: за неделю 73 обращения</title>
  <link>https://example.org/content/101</link>
  <pubDate>Sat, 15 Jun 2024 09:00:00 +0500</pubDate>
  <description>В медицинские организации обратилось 73 жителя.</description>
</item>
<item>
  <title>Итоги проверки предприятий</title>
  <link>https://example.org/content/102</link>
  <pubDate>Fri, 14 Jun 2024 09:00:00 +0500</pubDate>
  <description>Плановая проверка завершена.</description>
</item>
<item>
  <title>Профилактика на дачных участках</title>
  <link>https://example.org/content/103</link>
  <pubDate>Thu, 13 Jun 2024 09:00:00 +0500</pubDate>
  <description>Как защититься от укусов на природе.</description>
</item>
</channel>
</rss>`

func newRSSServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSS_FetchList(t *testing.T) {
	t.Parallel()

	srv := newRSSServer(t)

	src := NewRSS(config.SourceConfig{Enabled: true, RSSURL: srv.URL, MaxItems: 50})
	require.Equal(t, TagRSS, src.Name())

	raws, err := src.FetchList(context.Background(), testClient())
	require.NoError(t, err)

	// Запись без ключевых слов отброшена; «укусов» в описании достаточно.
	require.Len(t, raws, 2)

	first := raws[0]
	require.Equal(t, "https://example.org/content/101", first.URL)
	require.Equal(t, TagRSS, first.SourceTag)
	require.Contains(t, first.TitleGuess, "73 обращения")
	require.False(t, first.PublishedAt.IsZero())
	require.Equal(t, time.Date(2024, 6, 15, 4, 0, 0, 0, time.UTC), first.PublishedAt.UTC())

	second := raws[1]
	require.Equal(t, "https://example.org/content/103", second.URL)
}

func TestRSS_MaxItemsCap(t *testing.T) {
	t.Parallel()

	srv := newRSSServer(t)

	src := NewRSS(config.SourceConfig{Enabled: true, RSSURL: srv.URL, MaxItems: 1})

	raws, err := src.FetchList(context.Background(), testClient())
	require.NoError(t, err)
	require.Len(t, raws, 1)
}

func TestRSS_MissingURLConfigured(t *testing.T) {
	t.Parallel()

	src := NewRSS(config.SourceConfig{Enabled: true})
	_, err := src.FetchList(context.Background(), testClient())
	require.Error(t, err)
}

func TestRSS_BadFeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "это не xml")
	}))
	t.Cleanup(srv.Close)

	src := NewRSS(config.SourceConfig{Enabled: true, RSSURL: srv.URL, MaxItems: 10})
	_, err := src.FetchList(context.Background(), testClient())
	require.Error(t, err)
}
