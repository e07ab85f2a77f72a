// sources содержит экстракторы источников. Каждый источник изолирован:
// реализует общий контракт и отдаёт сырых кандидатов, не поднимая ошибок
// на сбоях отдельных элементов.
package sources

import (
	"context"

	"github.com/savelevaa/tick-monitor/internal/config"
	"github.com/savelevaa/tick-monitor/internal/fetch"
	"github.com/savelevaa/tick-monitor/internal/models"
)

// Теги источников. Используются в записях и счётчиках прогона.
const (
	TagWeb       = "rospotrebnadzor-web"
	TagRSS       = "rospotrebnadzor-rss"
	TagTelegram  = "telegram"
	TagVK        = "vk"
	TagLocalNews = "local-news"
)

// Source — контракт экстрактора. Новый источник добавляется регистрацией
// значения, планировщик ничего не знает о его устройстве.
type Source interface {
	// Name возвращает тег источника.
	Name() string
	// FetchList собирает сырых кандидатов. Ошибка означает недоступность
	// источника целиком; частичный результат с ошибкой допустим —
	// собранное до таймаута всё равно идёт в пайплайн.
	FetchList(ctx context.Context, client *fetch.Client) ([]models.RawRecord, error)
}

// Enabled собирает включённые конфигом источники в фиксированном порядке.
func Enabled(cfg config.SourcesConfig) []Source {
	var out []Source
	if cfg.Web.Enabled {
		out = append(out, NewWeb(cfg.Web))
	}
	if cfg.RSS.Enabled {
		out = append(out, NewRSS(cfg.RSS))
	}
	if cfg.Telegram.Enabled {
		out = append(out, NewTelegram(cfg.Telegram))
	}
	if cfg.VK.Enabled {
		out = append(out, NewVK(cfg.VK))
	}
	if cfg.LocalNews.Enabled {
		out = append(out, NewLocalNews(cfg.LocalNews))
	}
	return out
}
