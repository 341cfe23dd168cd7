package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncInstall("ok")
	AddPrecached(4, 1)
	ObserveActivation("ambetter-v1", 2)
	ObserveActivation("ambetter-v2", 1)
	ObserveFetch("cache-first", "cache", 5*time.Millisecond)
	IncSync("oneshot", nil)
	IncSync("oneshot", errors.New("boom"))
	IncNotification("shown")
	SetConnectedClients(3)

	if got := testutil.ToFloat64(installs.WithLabelValues("ok")); got != 1 {
		t.Fatalf("installs mismatch: %v", got)
	}
	if got := testutil.ToFloat64(precachedAssets.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped assets mismatch: %v", got)
	}
	if got := testutil.ToFloat64(deletedStores); got != 3 {
		t.Fatalf("deleted stores mismatch: %v", got)
	}
	// 只保留最新激活的版本
	if got := testutil.CollectAndCount(activeVersion); got != 1 {
		t.Fatalf("active version series mismatch: %d", got)
	}
	if got := testutil.ToFloat64(activeVersion.WithLabelValues("ambetter-v2")); got != 1 {
		t.Fatalf("active version gauge mismatch: %v", got)
	}
	if got := testutil.ToFloat64(syncRuns.WithLabelValues("oneshot", "error")); got != 1 {
		t.Fatalf("sync error count mismatch: %v", got)
	}
	if got := testutil.ToFloat64(connectedClients); got != 3 {
		t.Fatalf("clients gauge mismatch: %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"pwa_edge_controller_installs_total":  false,
		"pwa_edge_fetch_requests_total":       false,
		"pwa_edge_fetch_duration_seconds":     false,
		"pwa_edge_push_notifications_total":   false,
		"pwa_edge_cache_stores_deleted_total": false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}
