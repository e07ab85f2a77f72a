package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
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
	reArticleClass = regexp.MustCompile(`(?i)article|news|item|post`)
	reTitleClass   = regexp.MustCompile(`(?i)title|heading`)
	reContentClass = regexp.MustCompile(`(?i)content|text|excerpt|description`)
	reDateClass    = regexp.MustCompile(`(?i)date|time`)
)

// LocalNews — обобщённый парсер местного новостного сайта: перебор типовых
// поисковых URL, откат на главную страницу, поиск статьеподобных элементов
// по классам.
type LocalNews struct {
	cfg config.SourceConfig
}

// NewLocalNews создаёт экстрактор местных новостей.
func NewLocalNews(cfg config.SourceConfig) *LocalNews {
	return &LocalNews{cfg: cfg}
}

func (l *LocalNews) Name() string { return TagLocalNews }

// searchURLs — каскад поисковых страниц для запроса «клещ».
func (l *LocalNews) searchURLs() []string {
	base := strings.TrimRight(l.cfg.BaseURL, "/")
	if base == "" {
		return nil
	}
	query := url.QueryEscape("клещ")
	return []string{
		base + "/search?q=" + query,
		base + "/search/?query=" + query,
		base + "/news/?search=" + query,
		base + "/?s=" + query,
	}
}

// FetchList пробует поисковые URL, при неудаче — главную страницу.
func (l *LocalNews) FetchList(ctx context.Context, client *fetch.Client) ([]models.RawRecord, error) {
	const op = "sources.localnews.FetchList"

	lg := log.From(ctx)

	if l.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is not configured", op)
	}

	var body []byte
	for _, candidate := range l.searchURLs() {
		b, _, err := client.Get(ctx, candidate, nil)
		if err != nil {
			lg.Debug("localnews_search_failed",
				slog.String("url", candidate),
				slog.String("err", err.Error()),
			)
			continue
		}
		body = b
		break
	}

	if body == nil {
		b, _, err := client.Get(ctx, l.cfg.BaseURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: front page: %w", op, err)
		}
		body = b
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: parse html: %w", op, err)
	}

	articles := doc.Find("article,div").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		if goquery.NodeName(sel) == "article" {
			return true
		}
		class, _ := sel.Attr("class")
		return class != "" && reArticleClass.MatchString(class)
	})

	var out []models.RawRecord
	articles.EachWithBreak(func(_ int, article *goquery.Selection) bool {
		if len(out) >= l.cfg.MaxItems {
			return false
		}

		raw, ok := l.parseArticle(article)
		if !ok {
			return true
		}
		out = append(out, raw)
		return true
	})

	lg.Info("localnews_collected",
		slog.String("op", op),
		slog.Int("candidates", articles.Length()),
		slog.Int("records", len(out)),
	)

	return out, nil
}

// parseArticle собирает кандидата из статьеподобного элемента.
func (l *LocalNews) parseArticle(article *goquery.Selection) (models.RawRecord, bool) {
	title := strings.TrimSpace(article.Find("h1,h2,h3,a").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		return reTitleClass.MatchString(class)
	}).First().Text())
	if title == "" {
		title = strings.TrimSpace(article.Find("h1,h2,h3").First().Text())
	}
	if title == "" {
		return models.RawRecord{}, false
	}

	if !extract.ContainsKeyword(title, extract.KeywordsExtended) {
		return models.RawRecord{}, false
	}

	dateText := ""
	dateElem := article.Find("time,span").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		return reDateClass.MatchString(class)
	}).First()
	if dt, ok := dateElem.Attr("datetime"); ok && dt != "" {
		dateText = dt
	} else {
		dateText = strings.TrimSpace(dateElem.Text())
	}

	content := strings.TrimSpace(article.Find("div,p").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		return reContentClass.MatchString(class)
	}).First().Text())

	articleURL := ""
	if href, ok := article.Find("a[href]").First().Attr("href"); ok && href != "" {
		articleURL = l.absoluteURL(href)
	}

	return models.RawRecord{
		RawText:    normalizeSpace(title + "\n" + content),
		DateText:   dateText,
		URL:        articleURL,
		TitleGuess: title,
		SourceTag:  TagLocalNews,
	}, true
}

func (l *LocalNews) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(l.cfg.BaseURL, "/") + "/" + strings.TrimLeft(href, "/")
}
