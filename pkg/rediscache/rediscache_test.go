package rediscache

import (
	"context"
	"testing"
)

func TestNewFailsWhenRedisIsUnreachable(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("New() error = nil, want ping failure")
	}
}
