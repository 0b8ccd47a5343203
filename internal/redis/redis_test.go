package redis

import (
	"context"
	"testing"
	"time"

	"foresight/internal/config"
)

func TestNewRedisClientDisabled(t *testing.T) {
	client, err := NewRedisClient(&config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Fatalf("expected nil client when redis is not configured")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if err := c.Set(ctx, "k", "v", time.Second); err == nil {
		t.Fatalf("expected error from nil client set")
	}
	if err := c.Publish(ctx, "ch", []byte("x")); err == nil {
		t.Fatalf("expected error from nil client publish")
	}
	if c.Raw() != nil {
		t.Fatalf("expected nil raw client")
	}
	if Wrap(nil) != nil {
		t.Fatalf("expected nil wrap")
	}
}
