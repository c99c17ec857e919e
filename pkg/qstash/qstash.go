package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

const maxResponseSizeBytes = 1 << 20

var (
	ErrNoDestination = errors.New("qstash callback destination is required")
	ErrPublish       = errors.New("qstash publish failed")
)

type Config struct {
	URL         string        `split_words:"true" required:"true"`
	Token       string        `split_words:"true" required:"true"`
	CallbackURL string        `split_words:"true"`
	Delay       time.Duration `split_words:"true" default:"1h"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// CallbackJob is the message body delivered to the callback destination.
type CallbackJob struct {
	Phone       string    `json:"phone"`
	Window      string    `json:"window"`
	RequestedAt time.Time `json:"requested_at"`
}

type Client struct {
	baseURL     string
	token       string
	destination string
	delay       time.Duration
	httpClient  *http.Client
}

var _ contractx.CallbackScheduler = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	destination := strings.TrimSpace(cfg.CallbackURL)
	if destination == "" {
		return nil, ErrNoDestination
	}
	if _, err := url.ParseRequestURI(destination); err != nil {
		return nil, fmt.Errorf("qstash callback url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       strings.TrimSpace(cfg.Token),
		destination: destination,
		delay:       cfg.Delay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// ScheduleCallback publishes a delayed callback job and returns the QStash
// message id.
func (c *Client) ScheduleCallback(ctx context.Context, phone string, window string) (string, error) {
	body, err := json.Marshal(CallbackJob{
		Phone:       strings.TrimSpace(phone),
		Window:      strings.TrimSpace(window),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+c.destination, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.delay > 0 {
		req.Header.Set("Upstash-Delay", fmt.Sprintf("%ds", int64(c.delay.Seconds())))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrPublish, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", ErrPublish, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrPublish, err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("%w: response has no message id", ErrPublish)
	}
	return out.MessageID, nil
}
