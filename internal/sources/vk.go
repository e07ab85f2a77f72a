package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/extract"
	"github.com/savelevaa/tick-monitor/internal/fetch"
	"github.com/savelevaa/tick-monitor/internal/models"
	"github.com/savelevaa/tick-monitor/internal/pkg/log"
)

var (
	rePostClass   = regexp.MustCompile(`(?i)post|wall_item|post_content`)
	reTextClass   = regexp.MustCompile(`(?i)text|post_text|wall_post_text`)
	reVKDateClass = regexp.MustCompile(`(?i)date|time`)
	reWallHref    = regexp.MustCompile(`/wall-|post_id`)
)

// VK — публичная стена сообщества через веб-интерфейс.
// Разметка стены нестабильна, поэтому контейнеры постов ищутся каскадом:
// по классам, затем по атрибуту data-post-id.
type VK struct {
	cfg config.SourceConfig
}

// NewVK создаёт экстрактор стены VK.
func NewVK(cfg config.SourceConfig) *VK {
	return &VK{cfg: cfg}
}

func (v *VK) Name() string { return TagVK }

// FetchList сканирует контейнеры постов стены.
func (v *VK) FetchList(ctx context.Context, client *fetch.Client) ([]models.RawRecord, error) {
	const op = "sources.vk.FetchList"

	lg := log.From(ctx)

	if v.cfg.URL == "" {
		return nil, fmt.Errorf("%s: vk url is not configured", op)
	}

	body, _, err := client.Get(ctx, v.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: parse html: %w", op, err)
	}

	posts := doc.Find("div").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		return rePostClass.MatchString(class)
	})
	if posts.Length() == 0 {
		posts = doc.Find("div[data-post-id]")
	}

	var out []models.RawRecord
	posts.EachWithBreak(func(_ int, post *goquery.Selection) bool {
		if len(out) >= v.cfg.MaxItems {
			return false
		}

		text := strings.TrimSpace(post.Find("div").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			class, _ := sel.Attr("class")
			return reTextClass.MatchString(class)
		}).First().Text())
		if text == "" {
			return true
		}
		if !extract.ContainsKeyword(text, extract.Keywords) {
			return true
		}

		dateText := v.postDateText(post)

		postURL := v.cfg.URL
		post.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if !reWallHref.MatchString(href) {
				return true
			}
			if !strings.HasPrefix(href, "http") {
				href = "https://vk.com" + href
			}
			postURL = href
			return false
		})

		out = append(out, models.RawRecord{
			RawText:    text,
			DateText:   dateText,
			URL:        postURL,
			TitleGuess: firstSentence(text),
			SourceTag:  TagVK,
		})
		return true
	})

	lg.Info("vk_collected",
		slog.String("op", op),
		slog.Int("posts", posts.Length()),
		slog.Int("records", len(out)),
	)

	return out, nil
}

// postDateText достаёт подпись даты поста: атрибут datetime, затем текст
// элемента с классом даты/времени.
func (v *VK) postDateText(post *goquery.Selection) string {
	if dt, ok := post.Find("time[datetime]").First().Attr("datetime"); ok && dt != "" {
		return dt
	}

	dateElem := post.Find("span,time").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		return reVKDateClass.MatchString(class)
	}).First()

	return strings.TrimSpace(dateElem.Text())
}
