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

// maxSearchPages — сколько страниц выдачи поиска просматривается за прогон.
const maxSearchPages = 3

// articlePathRe — пути, по которым на сайте управления живут статьи.
var articlePathRe = regexp.MustCompile(`/(content|news)/`)

// Web — сайт регионального управления Роспотребнадзора: страницы поиска
// с пагинацией, из которых извлекаются ссылки на статьи; каждая статья
// загружается отдельно ради даты, заголовка и полного текста.
type Web struct {
	cfg config.SourceConfig
}

// NewWeb создаёт экстрактор веб-сайта.
func NewWeb(cfg config.SourceConfig) *Web {
	return &Web{cfg: cfg}
}

func (w *Web) Name() string { return TagWeb }

// FetchList обходит страницы поиска и загружает найденные статьи.
func (w *Web) FetchList(ctx context.Context, client *fetch.Client) ([]models.RawRecord, error) {
	const op = "sources.web.FetchList"

	lg := log.From(ctx)

	links := w.collectArticleLinks(ctx, client)
	if len(links) == 0 {
		return nil, fmt.Errorf("%s: no article links found", op)
	}

	out := make([]models.RawRecord, 0, len(links))
	for _, link := range links {
		if len(out) >= w.cfg.MaxItems {
			break
		}
		if err := ctx.Err(); err != nil {
			// Отдаём собранное: частичный результат лучше пустого.
			return out, fmt.Errorf("%s: %w", op, err)
		}

		raw, err := w.fetchArticle(ctx, client, link)
		if err != nil {
			lg.Warn("web_article_failed",
				slog.String("op", op),
				slog.String("url", link),
				slog.String("err", err.Error()),
			)
			continue
		}
		out = append(out, raw)
	}

	lg.Info("web_collected",
		slog.String("op", op),
		slog.Int("links", len(links)),
		slog.Int("records", len(out)),
	)

	return out, nil
}

// searchPageURLs — кандидаты первой страницы: настроенный поиск, затем
// типовые разделы сайта.
func (w *Web) searchPageURLs() []string {
	base := strings.TrimRight(w.cfg.BaseURL, "/")

	var out []string
	if w.cfg.SearchURL != "" {
		out = append(out, w.cfg.SearchURL)
	}
	if base != "" {
		out = append(out,
			base+"/search/?q=%D0%BA%D0%BB%D0%B5%D1%89%D0%B8",
			base+"/search/?q=%D0%BA%D0%BB%D0%B5%D1%89",
			base+"/news/",
			base+"/press/",
			base+"/",
		)
	}
	return out
}

// collectArticleLinks обходит выдачу: первый доступный URL из каскада,
// затем его страницы пагинации. Ссылки дедуплицируются.
func (w *Web) collectArticleLinks(ctx context.Context, client *fetch.Client) []string {
	lg := log.From(ctx)

	seen := make(map[string]struct{})
	var links []string

	var pageBase string
	for _, candidate := range w.searchPageURLs() {
		body, _, err := client.Get(ctx, candidate, nil)
		if err != nil {
			lg.Debug("web_search_candidate_failed",
				slog.String("url", candidate),
				slog.String("err", err.Error()),
			)
			continue
		}
		pageBase = candidate
		w.appendLinks(body, seen, &links)
		break
	}

	if pageBase == "" {
		return nil
	}

	for page := 2; page <= maxSearchPages && len(links) < w.cfg.MaxItems; page++ {
		pageURL := withPageParam(pageBase, page)
		body, _, err := client.Get(ctx, pageURL, nil)
		if err != nil {
			break
		}
		before := len(links)
		w.appendLinks(body, seen, &links)
		if len(links) == before {
			break
		}
	}

	if len(links) > w.cfg.MaxItems {
		links = links[:w.cfg.MaxItems]
	}
	return links
}

// appendLinks вытаскивает ссылки на статьи из HTML страницы выдачи.
func (w *Web) appendLinks(body []byte, seen map[string]struct{}, links *[]string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || !articlePathRe.MatchString(href) {
			return
		}

		abs := w.absoluteURL(href)
		if abs == "" {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		*links = append(*links, abs)
	})
}

// absoluteURL разрешает ссылку относительно базового URL источника.
func (w *Web) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(w.cfg.BaseURL)
	if err != nil || base.Host == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// withPageParam добавляет номер страницы к URL выдачи.
func withPageParam(rawURL string, page int) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("PAGEN_1", fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String()
}

// fetchArticle загружает статью и собирает кандидата.
// Заголовок и дата ищутся каскадом селекторов; тело — первый непустой
// контейнер контента.
func (w *Web) fetchArticle(ctx context.Context, client *fetch.Client, articleURL string) (models.RawRecord, error) {
	body, _, err := client.Get(ctx, articleURL, nil)
	if err != nil {
		return models.RawRecord{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.RawRecord{}, err
	}

	title := firstText(doc, "h1", ".news-title", ".article-title", "title")
	dateText := firstText(doc, ".news-date", ".date", "time", ".search-date")
	if dateText == "" {
		if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			dateText = dt
		}
	}

	content := firstText(doc, ".news-detail", ".article-content", ".content", "article")
	if content == "" {
		content = strings.TrimSpace(doc.Find("p").Text())
	}

	text := normalizeSpace(title + "\n" + content)
	if !extract.ContainsKeyword(text, extract.KeywordsExtended) {
		return models.RawRecord{}, fmt.Errorf("no tick keywords in article")
	}

	return models.RawRecord{
		RawText:    text,
		DateText:   dateText,
		URL:        articleURL,
		TitleGuess: title,
		SourceTag:  TagWeb,
	}, nil
}

// firstText возвращает текст первого селектора, давшего непустой результат.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var reSpaces = regexp.MustCompile(`[ \t]+`)

// normalizeSpace схлопывает горизонтальные пробелы, сохраняя переводы строк.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
