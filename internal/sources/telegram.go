package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/extract"
	"github.com/savelevaa/tick-monitor/internal/fetch"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
)

// Telegram — веб-зеркало канала (t.me/s/...). Сообщение обязано нести
// отметку времени с атрибутом datetime и пройти фильтр ключевых слов.
type Telegram struct {
	cfg config.SourceConfig
}

// NewTelegram создаёт экстрактор веб-зеркала Telegram.
func NewTelegram(cfg config.SourceConfig) *Telegram {
	return &Telegram{cfg: cfg}
}

func (t *Telegram) Name() string { return TagTelegram }

// FetchList разбирает контейнеры сообщений зеркала.
func (t *Telegram) FetchList(ctx context.Context, client *fetch.Client) ([]models.RawRecord, error) {
	const op = "sources.telegram.FetchList"

	lg := log.From(ctx)

	if t.cfg.URL == "" {
		return nil, fmt.Errorf("%s: telegram url is not configured", op)
	}

	body, _, err := client.Get(ctx, t.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: parse html: %w", op, err)
	}

	var out []models.RawRecord
	doc.Find("div.tgme_widget_message").EachWithBreak(func(_ int, msg *goquery.Selection) bool {
		if len(out) >= t.cfg.MaxItems {
			return false
		}

		text := strings.TrimSpace(msg.Find("div.tgme_widget_message_text").Text())
		if text == "" {
			return true
		}
		if !extract.ContainsKeyword(text, extract.Keywords) {
			return true
		}

		// Без машиночитаемой отметки времени сообщение не берём.
		datetime, ok := msg.Find("time").First().Attr("datetime")
		if !ok || datetime == "" {
			return true
		}

		msgURL := t.cfg.URL
		if href, ok := msg.Find("a.tgme_widget_message_date").First().Attr("href"); ok && href != "" {
			msgURL = href
		}

		out = append(out, models.RawRecord{
			RawText:    text,
			DateText:   datetime,
			URL:        msgURL,
			TitleGuess: firstSentence(text),
			SourceTag:  TagTelegram,
		})
		return true
	})

	lg.Info("telegram_collected",
		slog.String("op", op),
		slog.Int("records", len(out)),
	)

	return out, nil
}

// firstSentence — короткий заголовок из начала сообщения.
func firstSentence(text string) string {
	if idx := strings.IndexAny(text, ".!?\n"); idx > 0 && idx < 150 {
		return strings.TrimSpace(text[:idx])
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return text
}
