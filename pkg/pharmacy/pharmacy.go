package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const maxResponseSizeBytes = 8 << 20

var ErrBadStatus = errors.New("pharmacy api returned non-2xx status")

// api keeps numbers as json.Number so numeric ids survive untouched.
var api = sonic.Config{UseNumber: true}.Froze()

type Prescription struct {
	Drug  string `json:"drug"`
	Count int    `json:"count"`
}

// Record is one entry of the pharmacy directory API. Older payloads carry
// the display name as "name", newer ones as "pharmacyName".
type Record struct {
	ID            any            `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	PharmacyName  string         `json:"pharmacyName,omitempty"`
	Phone         string         `json:"phone"`
	Email         string         `json:"email,omitempty"`
	City          string         `json:"city,omitempty"`
	State         string         `json:"state,omitempty"`
	Tier          string         `json:"tier,omitempty"`
	Prescriptions []Prescription `json:"prescriptions,omitempty"`
}

// IDString renders the id whether the API sent a number or a string.
func (r Record) IDString() string {
	switch v := r.ID.(type) {
	case nil:
		return ""
	case json.Number:
		return v.String()
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) DisplayName() string {
	if v := strings.TrimSpace(r.PharmacyName); v != "" {
		return v
	}
	return strings.TrimSpace(r.Name)
}

func (r Record) TotalRxVolume() int {
	total := 0
	for _, p := range r.Prescriptions {
		total += p.Count
	}
	return total
}

// IsHighVolume is true above 100 prescriptions in total.
func (r Record) IsHighVolume() bool {
	return r.TotalRxVolume() > 100
}

func (r Record) Location() string {
	switch {
	case r.City != "" && r.State != "":
		return r.City + ", " + r.State
	case r.City != "":
		return r.City
	default:
		return r.State
	}
}

// TopDrugs returns up to n prescriptions ordered by count, highest first.
func (r Record) TopDrugs(n int) []Prescription {
	out := append([]Prescription(nil), r.Prescriptions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

type Config struct {
	URL     string        `envconfig:"API_URL" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("pharmacy api url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pharmacy api url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// FetchAll downloads the whole directory in one request.
func (c *Client) FetchAll(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build pharmacy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pharmacies: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read pharmacy response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: status=%d", ErrBadStatus, resp.StatusCode)
	}

	return Decode(raw)
}

// Decode parses a directory payload. Records without a phone are dropped.
func Decode(raw []byte) ([]Record, error) {
	var records []Record
	if err := api.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode pharmacy response: %w", err)
	}
	out := records[:0]
	for _, r := range records {
		if strings.TrimSpace(r.Phone) == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func Encode(records []Record) ([]byte, error) {
	return api.Marshal(records)
}
