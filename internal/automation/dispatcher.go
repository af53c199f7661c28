package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// NotificationLog records every dispatch attempt. The repository satisfies it.
type NotificationLog interface {
	LogNotification(ctx context.Context, schoolID string, req *domain.NotificationRequest, delivered bool, detail string) error
}

// DispatchReport counts the outcome of one Dispatch call.
type DispatchReport struct {
	Attempted  int `json:"attempted"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
}

// Dispatcher hands notification requests to the delivery collaborator.
//
// Requests go out on a bounded pool of workers that share one token bucket,
// so the channel never sees more than the configured rate however many
// workers run. A failed delivery is logged and recorded; it never stops the
// remaining requests, and its dedup claim is released so a later dispatch of
// the same notification can retry it.
type Dispatcher struct {
	notifier    domain.Notifier
	ledger      domain.Cache
	log         NotificationLog
	limiter     *rate.Limiter
	workers     int
	dedupWindow time.Duration
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. ledger and log may be nil.
func NewDispatcher(notifier domain.Notifier, ledger domain.Cache, log NotificationLog, cfg domain.DispatchConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		notifier:    notifier,
		ledger:      ledger,
		log:         log,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		workers:     cfg.Workers,
		dedupWindow: cfg.DedupWindow,
		logger:      logger,
	}
}

// Dispatch delivers reqs and waits for every attempt to finish.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []*domain.NotificationRequest) DispatchReport {
	var attempted, delivered, failed, duplicates atomic.Int64

	var g errgroup.Group
	g.SetLimit(d.workers)

	for _, req := range reqs {
		if req == nil {
			continue
		}
		g.Go(func() error {
			if d.claimed(ctx, req) {
				duplicates.Add(1)
				return nil
			}

			attempted.Add(1)
			ok, detail := d.deliver(ctx, req)
			if ok {
				delivered.Add(1)
			} else {
				failed.Add(1)
				d.release(ctx, req)
			}

			if d.log != nil {
				if err := d.log.LogNotification(ctx, req.SchoolID, req, ok, detail); err != nil {
					d.logger.Error("failed to record notification",
						"school_id", req.SchoolID,
						"request_id", req.ID,
						"error", err,
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return DispatchReport{
		Attempted:  int(attempted.Load()),
		Delivered:  int(delivered.Load()),
		Failed:     int(failed.Load()),
		Duplicates: int(duplicates.Load()),
	}
}

// claimed reports whether the request's dedup key was already taken. A
// ledger error lets the request through.
func (d *Dispatcher) claimed(ctx context.Context, req *domain.NotificationRequest) bool {
	if d.ledger == nil {
		return false
	}
	n, err := d.ledger.IncrementCounter(ctx, req.SchoolID, req.DedupKey(), d.dedupWindow)
	if err != nil {
		d.logger.Warn("dedup ledger unavailable",
			"school_id", req.SchoolID,
			"key", req.DedupKey(),
			"error", err,
		)
		return false
	}
	if n > 1 {
		d.logger.Debug("duplicate notification suppressed",
			"school_id", req.SchoolID,
			"rule_id", req.RuleID,
			"student_id", req.StudentID,
			"event_id", req.EventID,
		)
		return true
	}
	return false
}

// release drops the dedup claim of a request that was not delivered. It runs
// on a fresh context so a cancelled dispatch still frees its claims.
func (d *Dispatcher) release(ctx context.Context, req *domain.NotificationRequest) {
	if d.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := d.ledger.ResetCounter(ctx, req.SchoolID, req.DedupKey()); err != nil {
		d.logger.Warn("failed to release dedup claim",
			"school_id", req.SchoolID,
			"key", req.DedupKey(),
			"error", err,
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req *domain.NotificationRequest) (bool, string) {
	if err := d.limiter.Wait(ctx); err != nil {
		err = fmt.Errorf("%w: rate limiter: %v", domain.ErrDeliveryFailure, err)
		d.warn(req, err)
		return false, err.Error()
	}

	ok, err := d.notifier.Deliver(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrDeliveryFailure) {
			err = fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
		}
		d.warn(req, err)
		return false, err.Error()
	}
	if !ok {
		d.warn(req, domain.ErrDeliveryFailure)
		return false, "rejected by channel"
	}

	d.logger.Debug("notification delivered",
		"school_id", req.SchoolID,
		"rule_id", req.RuleID,
		"student_id", req.StudentID,
		"template_id", req.TemplateID,
		"role", req.Role,
	)
	return true, "delivered"
}

func (d *Dispatcher) warn(req *domain.NotificationRequest, err error) {
	d.logger.Warn("notification delivery failed",
		"school_id", req.SchoolID,
		"rule_id", req.RuleID,
		"student_id", req.StudentID,
		"role", req.Role,
		"error", err,
	)
}
