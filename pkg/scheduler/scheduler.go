package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

var ErrNoPhone = errors.New("callback phone is empty")

type Callback struct {
	Reference   string
	Phone       string
	Window      string
	ScheduledAt time.Time
}

// LogScheduler records callbacks in memory and logs them.
type LogScheduler struct {
	mu        sync.Mutex
	callbacks []Callback
}

var _ contractx.CallbackScheduler = (*LogScheduler)(nil)

func NewLogScheduler() *LogScheduler {
	return &LogScheduler{}
}

func (s *LogScheduler) ScheduleCallback(ctx context.Context, phone string, window string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: %w", contractx.ErrActionFailed, ErrNoPhone)
	}

	cb := Callback{
		Reference:   "CB-" + ulid.Make().String(),
		Phone:       phone,
		Window:      strings.TrimSpace(window),
		ScheduledAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()

	log.Info().
		Str("reference", cb.Reference).
		Str("phone", cb.Phone).
		Str("window", cb.Window).
		Msg("callback scheduled")
	return cb.Reference, nil
}

func (s *LogScheduler) Callbacks() []Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Callback(nil), s.callbacks...)
}
