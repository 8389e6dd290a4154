package cache

import (
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		ResultCacheSizeMB: 8,
		ResultTTL:         time.Minute,
		SummaryCacheSize:  16,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestResultCacheRoundTrip(t *testing.T) {
	m := newTestManager(t)

	if _, ok := m.GetResult("missing"); ok {
		t.Fatal("expected miss for absent key")
	}

	if err := m.SetResult("k1", []byte("payload")); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	data, ok := m.GetResult("k1")
	if !ok || string(data) != "payload" {
		t.Fatalf("GetResult = %q, %v", data, ok)
	}
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	m := newTestManager(t)

	m.SetSummary("s1", []byte("summary"))
	data, ok := m.GetSummary("s1")
	if !ok || string(data) != "summary" {
		t.Fatalf("GetSummary = %q, %v", data, ok)
	}
}

func TestResultKeyDeterministic(t *testing.T) {
	p1 := map[string]interface{}{"groupby": "cluster", "method": "wilcoxon", "n_genes": 50}
	p2 := map[string]interface{}{"n_genes": 50, "method": "wilcoxon", "groupby": "cluster"}

	k1 := ResultKey("pbmc", p1)
	k2 := ResultKey("pbmc", p2)
	if k1 != k2 {
		t.Fatalf("equivalent params produced different keys: %q vs %q", k1, k2)
	}

	p3 := map[string]interface{}{"groupby": "cluster", "method": "t-test", "n_genes": 50}
	if k3 := ResultKey("pbmc", p3); k3 == k1 {
		t.Fatalf("different params produced same key %q", k3)
	}
	if k4 := ResultKey("other", p1); k4 == k1 {
		t.Fatalf("different dataset produced same key %q", k4)
	}
}

func TestSummaryKey(t *testing.T) {
	if got := SummaryKey("pbmc", "CD3D", true); got != "summary:pbmc:CD3D:true" {
		t.Fatalf("SummaryKey = %q", got)
	}
}
