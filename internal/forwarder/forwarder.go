// Package forwarder asynchronously posts matching alerts to configured
// webhook sinks with retry/backoff (spec §4.9).
package forwarder

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wardloop/wardloop/internal/metrics"
	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/netguard"
)

// ConfigSource lists the currently configured sinks.
type ConfigSource interface {
	ListForwarders(ctx context.Context) ([]model.ForwarderConfig, error)
}

// SecretDecryptor decrypts a ForwarderConfig.Secret that was encrypted at
// rest (DESIGN.md's note on internal/auth/crypto.go). Optional:
// a nil encryptor means secrets are stored and signed in plaintext.
type SecretDecryptor interface {
	Decrypt(encoded string) (string, error)
}

// OverflowSink is notified when the queue drops an item, so the caller can
// turn it into a FORWARDER_OVERFLOW alert per spec §4.9.
type OverflowSink func()

type queueItem struct {
	config   model.ForwarderConfig
	alert    model.Alert
	deadline time.Time
}

// Forwarder owns a bounded in-process queue and a worker pool that delivers
// queued items with exponential backoff, guarding every outbound endpoint
// with netguard (see SPEC_FULL.md's SSRF-guarded-forwarder-endpoints note).
type Forwarder struct {
	configs   ConfigSource
	logger    *slog.Logger
	queue     chan queueItem
	overflow  OverflowSink
	client    *http.Client
	cap       int
	decryptor SecretDecryptor
}

func New(configs ConfigSource, logger *slog.Logger, queueCap int, timeout time.Duration, overflow OverflowSink, decryptor SecretDecryptor) *Forwarder {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if netguard.IsBlocked(ip.IP) {
					return nil, fmt.Errorf("forwarder: endpoint resolves to a blocked address: %s", ip.IP)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
	}
	return &Forwarder{
		configs:  configs,
		logger:   logger,
		queue:    make(chan queueItem, queueCap),
		overflow:  overflow,
		client:    &http.Client{Transport: transport, Timeout: timeout},
		cap:       queueCap,
		decryptor: decryptor,
	}
}

// secret returns cfg's plaintext webhook secret, decrypting it if an
// encryptor is configured.
func (f *Forwarder) secret(cfg model.ForwarderConfig) string {
	if f.decryptor == nil || cfg.Secret == "" {
		return cfg.Secret
	}
	plain, err := f.decryptor.Decrypt(cfg.Secret)
	if err != nil {
		f.logger.Warn("forwarder: secret decrypt failed, signing with stored value", "err", err)
		return cfg.Secret
	}
	return plain
}

// Enqueue evaluates alert against every configured sink and enqueues a
// delivery for each match. It returns promptly — queue full drops the
// oldest item and invokes overflow (spec §4.9); it never blocks the request
// path.
func (f *Forwarder) Enqueue(ctx context.Context, alert model.Alert) {
	configs, err := f.configs.ListForwarders(ctx)
	if err != nil {
		f.logger.Warn("forwarder: list configs failed", "err", err)
		return
	}
	for _, c := range configs {
		if !c.Matches(alert) {
			continue
		}
		f.push(queueItem{config: c, alert: alert, deadline: time.Now().Add(30 * time.Minute)})
	}
}

// EnqueueEvent enqueues a synthetic internal alert (e.g. an AUTO_BAN
// notification) that did not originate from the Classifier, used by the
// Penalty Engine (spec §4.4 steps 2/3 "forward ... with severity ...").
func (f *Forwarder) EnqueueEvent(kind model.Kind, severity model.Severity, subject, note string) {
	synthetic := model.Alert{
		CreatedAt:     time.Now(),
		RemoteAddress: subject,
		Kind:          kind,
		Severity:      severity,
		Payload:       note,
		Status:        model.StatusNew,
	}
	f.Enqueue(context.Background(), synthetic)
}

func (f *Forwarder) push(item queueItem) {
	select {
	case f.queue <- item:
		metrics.ForwarderQueueDepth.Set(float64(len(f.queue)))
	default:
		select {
		case <-f.queue:
		default:
		}
		select {
		case f.queue <- item:
		default:
		}
		metrics.ForwarderDrops.Inc()
		metrics.ForwarderQueueDepth.Set(float64(len(f.queue)))
		if f.overflow != nil {
			f.overflow()
		}
		f.logger.Warn("forwarder: queue full, dropped oldest item")
	}
}

// Run drains the queue, delivering each item with retry/backoff. Intended
// to be started N times (one per worker) under runloop.RunWithRecovery.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-f.queue:
			if !ok {
				return
			}
			f.deliver(ctx, item)
		}
	}
}

var backoffSchedule = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

func (f *Forwarder) deliver(ctx context.Context, item queueItem) {
	if time.Now().After(item.deadline) {
		f.logger.Warn("forwarder: item deadline exceeded, dropping", "endpoint", item.config.Endpoint)
		return
	}

	body, err := json.Marshal(item.alert)
	if err != nil {
		f.logger.Error("forwarder: marshal alert failed", "err", err)
		return
	}

	maxAttempts := item.config.Retries
	if maxAttempts <= 0 || maxAttempts > 3 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			idx := attempt - 1
			if idx >= len(backoffSchedule) {
				idx = len(backoffSchedule) - 1
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffSchedule[idx]):
			}
		}
		if lastErr = f.post(ctx, item.config, body); lastErr == nil {
			return
		}
	}
	f.logger.Warn("forwarder: delivery failed after retries", "endpoint", item.config.Endpoint, "err", lastErr)
}

func (f *Forwarder) post(ctx context.Context, cfg model.ForwarderConfig, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, f.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sign(f.secret(cfg), body))

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("forwarder: endpoint returned %s", resp.Status)
	}
	return nil
}

// sign computes the HMAC-SHA256 signature of body under secret, hex encoded.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// TestPing sends a synthetic single-attempt, no-retry, no-filter test
// payload through cfg's delivery path (SPEC_FULL.md's forwarder
// self-test supplement).
func (f *Forwarder) TestPing(ctx context.Context, cfg model.ForwarderConfig) error {
	body, _ := json.Marshal(map[string]string{"event": "test", "id": uuid.NewString()})
	return f.post(ctx, cfg, body)
}
