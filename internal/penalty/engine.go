// Package penalty implements the Penalty Engine: progressive
// active -> suspended -> banned enforcement based on offense counts
// (spec §4.4), serialized per subject (spec §5).
package penalty

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardloop/wardloop/internal/ledger"
	"github.com/wardloop/wardloop/internal/metrics"
	"github.com/wardloop/wardloop/internal/model"
)

// Store is the subset of internal/store the Penalty Engine needs.
type Store interface {
	GetPrincipal(ctx context.Context, id int64) (*model.Principal, error)
	SetPrincipalActive(ctx context.Context, id int64, active bool) error
	ActiveBan(ctx context.Context, kind model.SubjectKind, subject string) (*model.Ban, error)
	CreateBan(ctx context.Context, kind model.SubjectKind, subject, reason string, expiresAt *time.Time) (*model.Ban, error)
	AppendAdminAction(ctx context.Context, actorPrincipalID *int64, kind model.AdminActionKind, target, note string) (*model.AdminAction, error)
}

// EventSink receives synthetic internal events for forwarding (spec §4.9);
// implemented by internal/forwarder.
type EventSink interface {
	EnqueueEvent(kind model.Kind, severity model.Severity, subject, note string)
}

// Config is the subset of thresholds/windows the engine consults.
type Config struct {
	SuspendThreshold   int
	BanThreshold       int
	AddrBurstThreshold int
	AddrBurstWindow    time.Duration
	AddrBanDuration    time.Duration
}

// Engine applies spec §4.4's penalty algorithm. All writes for a subject are
// serialized through subjectLocks, as spec §5 requires.
type Engine struct {
	store  Store
	ledger *ledger.Ledger
	sink   EventSink
	cfg    Config
	logger *slog.Logger
	locks  *subjectLocks
}

func New(store Store, lg *ledger.Ledger, sink EventSink, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{store: store, ledger: lg, sink: sink, cfg: cfg, logger: logger, locks: newSubjectLocks()}
}

// Apply runs the Penalty Engine for one newly inserted alert, per spec
// §4.4. principalID may be nil; remoteAddress is always evaluated
// independently (step 3 of §4.4 runs regardless of principal outcome).
func (e *Engine) Apply(ctx context.Context, principalID *int64, remoteAddress string, severity model.Severity) error {
	if principalID != nil {
		if err := e.applyPrincipal(ctx, *principalID, severity); err != nil {
			return fmt.Errorf("apply principal penalty: %w", err)
		}
	}
	if remoteAddress != "" {
		if err := e.applyAddress(ctx, remoteAddress, severity); err != nil {
			return fmt.Errorf("apply address penalty: %w", err)
		}
	}
	return nil
}

func halved(n int, critical bool) int {
	if critical {
		half := n / 2
		if half < 1 {
			half = 1
		}
		return half
	}
	return n
}

func (e *Engine) applyPrincipal(ctx context.Context, principalID int64, severity model.Severity) error {
	unlock := e.locks.Lock(fmt.Sprintf("p:%d", principalID))
	defer unlock()

	principal, err := e.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	if principal.Role == model.RoleAdmin {
		e.logger.Info("penalty engine skipped admin principal", "principal_id", principalID)
		return nil
	}

	n, err := e.ledger.CountAll(ctx, principalID)
	if err != nil {
		return err
	}

	critical := severity == model.SeverityCritical
	banThreshold := halved(e.cfg.BanThreshold, critical)
	suspendThreshold := halved(e.cfg.SuspendThreshold, critical)

	subject := fmt.Sprintf("%d", principalID)

	if n >= banThreshold {
		existing, err := e.store.ActiveBan(ctx, model.SubjectPrincipal, subject)
		if err != nil {
			return err
		}
		if existing == nil {
			if _, err := e.store.CreateBan(ctx, model.SubjectPrincipal, subject, "automatic: offense threshold exceeded", nil); err != nil {
				return err
			}
			metrics.BansByLevel.WithLabelValues(string(model.SubjectPrincipal)).Inc()
			if err := e.store.SetPrincipalActive(ctx, principalID, false); err != nil {
				return err
			}
			if _, err := e.store.AppendAdminAction(ctx, nil, model.ActionAutoBan, subject, fmt.Sprintf("count_all=%d threshold=%d", n, banThreshold)); err != nil {
				return err
			}
			if e.sink != nil {
				e.sink.EnqueueEvent(model.KindInternal, model.SeverityCritical, subject, "principal auto-banned")
			}
			return nil
		}
	}

	if n >= suspendThreshold && principal.IsActive {
		if err := e.store.SetPrincipalActive(ctx, principalID, false); err != nil {
			return err
		}
		if _, err := e.store.AppendAdminAction(ctx, nil, model.ActionAutoSuspend, subject, fmt.Sprintf("count_all=%d threshold=%d", n, suspendThreshold)); err != nil {
			return err
		}
		if e.sink != nil {
			e.sink.EnqueueEvent(model.KindInternal, model.SeverityHigh, subject, "principal auto-suspended")
		}
	}
	return nil
}

func (e *Engine) applyAddress(ctx context.Context, remoteAddress string, severity model.Severity) error {
	unlock := e.locks.Lock(fmt.Sprintf("a:%s", remoteAddress))
	defer unlock()

	m, err := e.ledger.CountRecent(ctx, remoteAddress, e.cfg.AddrBurstWindow)
	if err != nil {
		return err
	}

	critical := severity == model.SeverityCritical
	burstThreshold := halved(e.cfg.AddrBurstThreshold, critical)

	if m < burstThreshold {
		return nil
	}

	existing, err := e.store.ActiveBan(ctx, model.SubjectAddress, remoteAddress)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	expiresAt := time.Now().Add(e.cfg.AddrBanDuration)
	if _, err := e.store.CreateBan(ctx, model.SubjectAddress, remoteAddress, "automatic: address burst threshold exceeded", &expiresAt); err != nil {
		return err
	}
	metrics.BansByLevel.WithLabelValues(string(model.SubjectAddress)).Inc()
	if _, err := e.store.AppendAdminAction(ctx, nil, model.ActionAutoIPBan, remoteAddress, fmt.Sprintf("count_recent=%d threshold=%d", m, burstThreshold)); err != nil {
		return err
	}
	if e.sink != nil {
		e.sink.EnqueueEvent(model.KindInternal, model.SeverityHigh, remoteAddress, "address auto-banned")
	}
	return nil
}
