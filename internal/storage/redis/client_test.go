package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewClientPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(context.Background(), Config{Address: srv.Addr()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	srv.CheckGet(t, "k", "v")
}

func TestNewClientErrors(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty address")
	}

	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()
	if _, err := NewClient(context.Background(), Config{Address: addr}); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
