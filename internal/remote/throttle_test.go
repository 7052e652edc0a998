package remote

import (
	"context"
	"testing"
)

func TestNewThrottle_DisabledReturnsClient(t *testing.T) {
	t.Parallel()

	client := NewMemory()
	if got := NewThrottle(client, 0); got != Client(client) {
		t.Fatalf("expected unthrottled client to be returned as-is")
	}
}

func TestThrottle_RespectsContext(t *testing.T) {
	t.Parallel()

	client := NewMemory()
	throttled := NewThrottle(client, 0.001)

	if _, err := throttled.ListServices(context.Background(), "team-1", ListOptions{}); err != nil {
		t.Fatalf("expected first call to use the burst, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := throttled.ListServices(ctx, "team-1", ListOptions{}); err == nil {
		t.Fatalf("expected throttled call with cancelled context to fail")
	}
	if got := client.CountCalls(OpListServices); got != 1 {
		t.Fatalf("expected only one call to reach the client, got %d", got)
	}
}
