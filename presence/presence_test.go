package presence

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) SetManyWithExpiry(ctx context.Context, kv map[string]string, ttl time.Duration) error {
	for k, v := range kv {
		f.data[k] = v
	}
	return nil
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) MGet(ctx context.Context, keys []string) ([]string, []bool, error) {
	vals := make([]string, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			vals[i] = v
			found[i] = true
		}
	}
	return vals, found, nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (f *fakeKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	prefix, suffix, hasStar := cutGlob(pattern)
	var out []string
	for k := range f.data {
		if hasStar {
			if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, suffix) {
				out = append(out, k)
			}
		} else if k == pattern {
			out = append(out, k)
		}
	}
	return out, nil
}

func cutGlob(pattern string) (prefix, suffix string, hasStar bool) {
	idx := strings.Index(pattern, "*")
	if idx < 0 {
		return pattern, "", false
	}
	return pattern[:idx], pattern[idx+1:], true
}

func TestSetOnline_ThenGetOnlineStatuses(t *testing.T) {
	kv := newFakeKV()
	core := NewCore(kv)
	ctx := context.Background()

	if err := core.SetOnline(ctx, "u1", "sock1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses, err := core.GetOnlineStatuses(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !statuses["u1"] {
		t.Fatal("expected u1 to be online")
	}
	if statuses["u2"] {
		t.Fatal("expected u2 to be offline")
	}
}

func TestSetOffline_ClearsTyping(t *testing.T) {
	kv := newFakeKV()
	core := NewCore(kv)
	ctx := context.Background()

	if err := core.SetOnline(ctx, "u1", "sock1"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := core.SetTyping(ctx, "conv1", "u1"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := core.SetOffline(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses, _ := core.GetOnlineStatuses(ctx, []string{"u1"})
	if statuses["u1"] {
		t.Fatal("expected u1 to be offline")
	}

	typing, err := core.GetTyping(ctx, "conv1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(typing) != 0 {
		t.Fatalf("expected no typing entries after going offline, got %v", typing)
	}
}

func TestSetTyping_ClearTyping(t *testing.T) {
	kv := newFakeKV()
	core := NewCore(kv)
	ctx := context.Background()

	if err := core.SetTyping(ctx, "conv1", "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	typing, err := core.GetTyping(ctx, "conv1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(typing) != 1 || typing[0] != "u1" {
		t.Fatalf("expected [u1] typing, got %v", typing)
	}

	if err := core.ClearTyping(ctx, "conv1", "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	typing, _ = core.GetTyping(ctx, "conv1")
	if len(typing) != 0 {
		t.Fatalf("expected no typing entries after clear, got %v", typing)
	}
}
