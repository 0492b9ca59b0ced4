package services

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDeliveryMarkers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryDeliveryMarkers(time.Minute).(*memoryMarkers)
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if seen, _ := m.Seen(ctx, 1, "Olá!"); seen {
		t.Fatalf("empty store reported seen")
	}
	if ok, err := m.Claim(ctx, 1, "Olá!"); err != nil || !ok {
		t.Fatalf("Claim: want=true got=%v err=%v", ok, err)
	}
	if seen, _ := m.Seen(ctx, 1, "Olá!"); !seen {
		t.Fatalf("want seen after Claim")
	}
	if ok, _ := m.Claim(ctx, 1, "Olá!"); ok {
		t.Fatalf("second Claim of the same text: want=false got=true")
	}
	if seen, _ := m.Seen(ctx, 1, "Outra resposta"); seen {
		t.Fatalf("different text must not be seen")
	}
	if seen, _ := m.Seen(ctx, 2, "Olá!"); seen {
		t.Fatalf("markers are per ticket")
	}

	// Last writer wins.
	_, _ = m.Claim(ctx, 1, "Outra resposta")
	if seen, _ := m.Seen(ctx, 1, "Olá!"); seen {
		t.Fatalf("old text still seen after overwrite")
	}

	clock = clock.Add(2 * time.Minute)
	if seen, _ := m.Seen(ctx, 1, "Outra resposta"); seen {
		t.Fatalf("marker survived its ttl")
	}
}

func TestReleaseOnlyDropsMatchingMarker(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryDeliveryMarkers(time.Minute)

	_, _ = m.Claim(ctx, 1, "Olá!")
	_ = m.Release(ctx, 1, "Outra resposta")
	if seen, _ := m.Seen(ctx, 1, "Olá!"); !seen {
		t.Fatalf("Release of another text dropped the marker")
	}
	_ = m.Release(ctx, 1, "Olá!")
	if ok, _ := m.Claim(ctx, 1, "Olá!"); !ok {
		t.Fatalf("Claim after Release: want=true got=false")
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryDeliveryMarkers(time.Minute)

	const n = 16
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			ok, _ := m.Claim(ctx, 7, "Resposta")
			wins <- ok
		}()
	}
	got := 0
	for i := 0; i < n; i++ {
		if <-wins {
			got++
		}
	}
	if got != 1 {
		t.Fatalf("claim winners: want=1 got=%d", got)
	}
}
