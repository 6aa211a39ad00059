package changedfiles

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProber struct {
	calls int
	files []string
	err   error
}

func (f *fakeProber) ChangedFiles(ctx context.Context, canonicalRoot string) ([]string, error) {
	f.calls++
	return f.files, f.err
}

func TestGetCachesWithinTTL(t *testing.T) {
	prober := &fakeProber{files: []string{"a.go", "b.go"}}
	cache := NewCache(prober, 60000)

	r1 := cache.Get(context.Background(), "/repo")
	r2 := cache.Get(context.Background(), "/repo")

	if !r1.Available || !r2.Available {
		t.Fatalf("expected both lookups available")
	}
	if prober.calls != 1 {
		t.Errorf("expected 1 probe call, got %d", prober.calls)
	}
}

func TestGetFallsBackToLastGoodOnProbeFailure(t *testing.T) {
	prober := &fakeProber{files: []string{"a.go"}}
	cache := NewCache(prober, 1) // 1ms TTL so the second Get reprobes

	first := cache.Get(context.Background(), "/repo")
	if !first.Available || len(first.Files) != 1 {
		t.Fatalf("expected first probe to succeed, got %+v", first)
	}

	time.Sleep(5 * time.Millisecond)
	prober.err = errors.New("git not found")
	second := cache.Get(context.Background(), "/repo")
	if !second.Available || second.Files[0] != "a.go" {
		t.Fatalf("expected fallback to last-good value, got %+v", second)
	}
}

func TestGetUnavailableWithNoPriorSuccess(t *testing.T) {
	prober := &fakeProber{err: errors.New("not a git repo")}
	cache := NewCache(prober, 60000)

	r := cache.Get(context.Background(), "/repo")
	if r.Available {
		t.Errorf("expected unavailable result with no prior success")
	}
}

func TestInvalidateForcesReprobe(t *testing.T) {
	prober := &fakeProber{files: []string{"a.go"}}
	cache := NewCache(prober, 60000)

	cache.Get(context.Background(), "/repo")
	cache.Invalidate("/repo")
	cache.Get(context.Background(), "/repo")

	if prober.calls != 2 {
		t.Errorf("expected 2 probe calls after invalidation, got %d", prober.calls)
	}
}
