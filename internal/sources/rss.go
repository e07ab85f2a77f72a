package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/extract"
	"github.com/savelevaa/tick-monitor/internal/fetch"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
)

// RSS — лента регионального управления. Записи фильтруются по ключевым
// словам тематики; дата публикации берётся из метаданных ленты.
type RSS struct {
	cfg    config.SourceConfig
	parser *gofeed.Parser
}

// NewRSS создаёт экстрактор RSS-ленты.
func NewRSS(cfg config.SourceConfig) *RSS {
	return &RSS{cfg: cfg, parser: gofeed.NewParser()}
}

func (r *RSS) Name() string { return TagRSS }

// FetchList загружает ленту через общий HTTP-клиент и разбирает её gofeed.
func (r *RSS) FetchList(ctx context.Context, client *fetch.Client) ([]models.RawRecord, error) {
	const op = "sources.rss.FetchList"

	lg := log.From(ctx)

	feedURL := r.cfg.RSSURL
	if feedURL == "" {
		feedURL = r.cfg.URL
	}
	if feedURL == "" {
		return nil, fmt.Errorf("%s: rss url is not configured", op)
	}

	body, _, err := client.Get(ctx, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	feed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%s: parse feed: %w", op, err)
	}

	out := make([]models.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if len(out) >= r.cfg.MaxItems {
			break
		}

		title := strings.TrimSpace(item.Title)
		description := strings.TrimSpace(item.Description)
		text := title + "\n" + description

		if !extract.ContainsKeyword(text, extract.Keywords) {
			continue
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		out = append(out, models.RawRecord{
			RawText:     text,
			DateText:    item.Published,
			URL:         strings.TrimSpace(item.Link),
			TitleGuess:  title,
			SourceTag:   TagRSS,
			PublishedAt: published,
		})
	}

	lg.Info("rss_collected",
		slog.String("op", op),
		slog.Int("feed_items", len(feed.Items)),
		slog.Int("records", len(out)),
	)

	return out, nil
}
