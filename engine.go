package goIAM

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIAM/internal/audit"
	"github.com/MrEthical07/goIAM/internal/flows"
	"github.com/MrEthical07/goIAM/internal/logging"
	"github.com/MrEthical07/goIAM/session"
	"github.com/redis/go-redis/v9"
)

// Engine runs the authentication flows. It is safe for concurrent use after
// [Builder.Build].
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	flows     flows.Service
	sessions  session.Store
	redis     redis.UniversalClient
	mailer    Mailer
	responder SecurityResponder
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters and histograms.
// A nil engine or disabled metrics yield empty maps. It never fails and is
// safe for concurrent use.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the Redis connection when one is configured. It returns nil
// for engines running on in-process stores.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return ErrBackendUnavailable
	}
	return nil
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) timeNow() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// errorFor maps a flow failure onto the exported taxonomy.
func errorFor(kind flows.FailureKind) error {
	switch kind {
	case flows.FailureNone:
		return nil
	case flows.FailureInvalidInput:
		return ErrInvalidInput
	case flows.FailureForbidden:
		return ErrForbidden
	case flows.FailureConflict:
		return ErrConflict
	case flows.FailureInvalidCredentials,
		flows.FailureInvalidToken,
		flows.FailureTOTPRequired,
		flows.FailureTOTPInvalid:
		return ErrUnauthorized
	case flows.FailureNotFound:
		return ErrNotFound
	case flows.FailureReuse:
		return ErrReuseDetected
	case flows.FailureRateLimited:
		return ErrRateLimited
	case flows.FailureDelivery:
		return ErrDeliveryFailed
	case flows.FailureBackend:
		return ErrBackendUnavailable
	default:
		return ErrInternal
	}
}

// finish logs a failed flow and returns its exported error. Backend and
// internal failures log at error level with the cause; expected rejections
// log at debug.
func (e *Engine) finish(ctx context.Context, op string, res flows.Result) error {
	err := errorFor(res.Failure)
	if err == nil {
		return nil
	}

	attrs := []any{
		slog.String("op", op),
		slog.String("failure", res.Failure.String()),
	}
	if res.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", res.AccountID))
	}
	if res.Err != nil {
		attrs = append(attrs, logging.Err(res.Err))
	}

	switch res.Failure {
	case flows.FailureBackend, flows.FailureInternal:
		e.logger.ErrorContext(ctx, "flow failed", attrs...)
	case flows.FailureDelivery, flows.FailureReuse:
		e.logger.WarnContext(ctx, "flow failed", attrs...)
	default:
		e.logger.DebugContext(ctx, "flow rejected", attrs...)
	}
	return err
}

func activeUserFromFlow(c flows.AccessClaims) ActiveUser {
	return ActiveUser{Subject: c.Subject, Email: c.Email, Role: c.Role}
}

// logResponder is the default SecurityResponder.
type logResponder struct {
	logger *slog.Logger
}

func (r logResponder) OnRefreshReuse(ctx context.Context, ev ReuseEvent) {
	r.logger.WarnContext(ctx, "refresh token reuse detected",
		slog.String("account_id", ev.AccountID),
		slog.String("ip", ev.IP),
		slog.Time("detected_at", ev.DetectedAt),
	)
}
