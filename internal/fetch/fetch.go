// fetch реализует HTTP-клиент источников: повторы с линейной задержкой,
// ограничение времени запроса и ротация User-Agent.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/savelevaa/tick-monitor/internal/pkg/log"
)

var (
	// ErrTimeout — запрос не уложился в таймаут.
	ErrTimeout = errors.New("request timeout")
	// ErrConnReset — соединение сброшено удалённой стороной.
	ErrConnReset = errors.New("connection reset")
	// ErrTooManyRetries — попытки исчерпаны.
	ErrTooManyRetries = errors.New("too many retries")
)

// StatusError — ответ с неуспешным HTTP-статусом.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// userAgents — пул браузерных User-Agent; на каждую попытку берётся случайный.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.2365.92",
}

// Client — HTTP-клиент источников.
//
// Повторы: до Retries попыток; задержка перед следующей попыткой растёт
// линейно — Delay × номер неудачной попытки.
// 4xx (кроме 429) прекращает попытки сразу; 5xx и сетевые ошибки повторяются.
// Отмена контекста прекращает повторы немедленно.
type Client struct {
	httpc   *http.Client
	retries int
	delay   time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// New создаёт клиента с заданным числом попыток, задержкой и таймаутом запроса.
func New(retries int, delay, timeout time.Duration) *Client {
	if retries <= 0 {
		retries = 3
	}
	if delay < 0 {
		delay = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		retries: retries,
		delay:   delay,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// userAgent возвращает случайный User-Agent из пула.
func (c *Client) userAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return userAgents[c.rnd.Intn(len(userAgents))]
}

// Get выполняет GET с повторами и возвращает тело и HTTP-статус.
//
// Заголовки Accept/Accept-Language проставляются всегда (русская локаль —
// источники отдают региональные страницы), headers может их переопределить.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header) ([]byte, int, error) {
	const op = "fetch.Get"

	lg := log.From(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}

		body, status, err := c.do(ctx, rawURL, headers)
		if err == nil {
			return body, status, nil
		}
		lastErr = err

		// Клиентские статусы, кроме 429, повторять бессмысленно.
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return nil, se.Code, fmt.Errorf("%s: %w", op, err)
		}

		lg.Warn("fetch_attempt_failed",
			slog.String("op", op),
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.retries),
			slog.String("err", err.Error()),
		)

		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(c.delay * time.Duration(attempt)):
			}
		}
	}

	return nil, 0, fmt.Errorf("%s: %w: %w", op, ErrTooManyRetries, lastErr)
}

// do — одна попытка запроса.
func (c *Client) do(ctx context.Context, rawURL string, headers http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.8,en-US;q=0.5,en;q=0.3")
	for k, vs := range headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, classify(err)
	}

	return body, resp.StatusCode, nil
}

// classify сводит сетевые ошибки к доменным вариантам.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	if errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %w", ErrConnReset, err)
	}

	return err
}
