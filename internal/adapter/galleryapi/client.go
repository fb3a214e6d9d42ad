// Package galleryapi реализует HTTP-клиент к API галереи, используемый загрузчиком пачек.
package galleryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/retry"
	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// StatusError возвращается, когда сервер ответил кодом >= 400.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gallery api: status %d: %s", e.StatusCode, e.Message)
}

// Client представляет клиент для взаимодействия с API галереи.
type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		policy:     retry.DefaultPolicy(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetUploadTargets(ctx context.Context, reqs []domain.UploadRequest) ([]domain.UploadTarget, error) {
	var targets []domain.UploadTarget
	if err := c.doJSON(ctx, http.MethodPost, "/api/uploads/targets", reqs, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// UploadRaw кладёт байты по presigned-ссылке. Content-Type должен совпадать с подписанным.
func (c *Client) UploadRaw(ctx context.Context, url string, body []byte, contentType string) error {
	_, err := retry.Do(ctx, c.policy, c.logger, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, retry.Permanent(fmt.Errorf("build upload request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)
		req.ContentLength = int64(len(body))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("upload to store: %w", err)
		}
		defer resp.Body.Close()
		return struct{}{}, checkStatus(resp)
	})
	return err
}

func (c *Client) CreatePendingRecord(ctx context.Context, photoName, fullKey string) (uuid.UUID, error) {
	in := map[string]string{"photoName": photoName, "fullKey": fullKey}
	var out struct {
		PK uuid.UUID `json:"pk"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/photos", in, &out); err != nil {
		return uuid.Nil, err
	}
	return out.PK, nil
}

func (c *Client) Optimize(ctx context.Context, fullKey string) (*domain.OptimizeResult, error) {
	var out domain.OptimizeResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/photos/optimize", map[string]string{"fullKey": fullKey}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON отправляет JSON и декодирует ответ, повторяя сетевые ошибки и 5xx.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}

	_, err = retry.Do(ctx, c.policy, c.logger, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, retry.Permanent(fmt.Errorf("build request for %s: %w", path, err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return struct{}{}, err
		}
		if out == nil {
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, retry.Permanent(fmt.Errorf("decode response of %s: %w", path, err))
		}
		return struct{}{}, nil
	})
	return err
}

// checkStatus превращает код ответа в ошибку. 4xx не ретраятся.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(raw))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	err := &StatusError{StatusCode: resp.StatusCode, Message: msg}
	if resp.StatusCode < 500 {
		return retry.Permanent(err)
	}
	return err
}

// IsStatus сообщает, что err является ответом сервера с данным кодом.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
