package forwarder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wardloop/wardloop/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticConfigs struct {
	configs []model.ForwarderConfig
}

func (s staticConfigs) ListForwarders(ctx context.Context) ([]model.ForwarderConfig, error) {
	return s.configs, nil
}

func TestSignIsDeterministicHMAC(t *testing.T) {
	body := []byte(`{"id":1}`)
	a := sign("secret", body)
	b := sign("secret", body)
	if a != b {
		t.Errorf("expected identical signatures for identical input, got %q vs %q", a, b)
	}
	if c := sign("other-secret", body); c == a {
		t.Errorf("expected a different secret to change the signature")
	}
}

func TestEnqueueOnlyQueuesMatchingConfigs(t *testing.T) {
	configs := staticConfigs{configs: []model.ForwarderConfig{
		{ID: "a", Endpoint: "https://example.com/a", Enabled: true, MinSeverity: model.SeverityCritical},
		{ID: "b", Endpoint: "https://example.com/b", Enabled: true, MinSeverity: model.SeverityLow},
	}}
	f := New(configs, discardLogger(), 10, time.Second, nil, nil)

	f.Enqueue(context.Background(), model.Alert{Kind: model.KindXSS, Severity: model.SeverityMedium})

	if len(f.queue) != 1 {
		t.Fatalf("expected exactly one queued delivery (only config b matches MEDIUM), got %d", len(f.queue))
	}
	item := <-f.queue
	if item.config.ID != "b" {
		t.Errorf("expected config b to match, got %s", item.config.ID)
	}
}

func TestQueueOverflowDropsOldestAndNotifies(t *testing.T) {
	configs := staticConfigs{configs: []model.ForwarderConfig{
		{ID: "a", Endpoint: "https://example.com/a", Enabled: true},
	}}
	var overflowed int32
	f := New(configs, discardLogger(), 1, time.Second, func() { atomic.AddInt32(&overflowed, 1) }, nil)

	f.Enqueue(context.Background(), model.Alert{Kind: model.KindXSS, Severity: model.SeverityLow, Route: "/first"})
	f.Enqueue(context.Background(), model.Alert{Kind: model.KindXSS, Severity: model.SeverityLow, Route: "/second"})

	if atomic.LoadInt32(&overflowed) != 1 {
		t.Errorf("expected the overflow sink to fire exactly once, got %d", overflowed)
	}
	if len(f.queue) != 1 {
		t.Fatalf("expected the queue to stay at its cap of 1, got %d", len(f.queue))
	}
	item := <-f.queue
	if item.alert.Route != "/second" {
		t.Errorf("expected drop-oldest to keep the newest item, got route=%s", item.alert.Route)
	}
}

func TestPostBlocksLoopbackEndpoints(t *testing.T) {
	f := New(staticConfigs{}, discardLogger(), 10, time.Second, nil, nil)
	cfg := model.ForwarderConfig{Endpoint: "http://127.0.0.1:1/hook"}

	err := f.TestPing(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected the SSRF guard to block a loopback forwarder endpoint")
	}
}

func TestSecretDecryptionFallsBackToStoredValueOnError(t *testing.T) {
	f := New(staticConfigs{}, discardLogger(), 10, time.Second, nil, failingDecryptor{})
	got := f.secret(model.ForwarderConfig{Secret: "cipher-text"})
	if got != "cipher-text" {
		t.Errorf("expected fallback to the stored value on decrypt failure, got %q", got)
	}
}

type failingDecryptor struct{}

func (failingDecryptor) Decrypt(string) (string, error) {
	return "", errDecryptFailed
}

var errDecryptFailed = errors.New("decrypt failed")
