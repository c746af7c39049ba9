package gamification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/habitloop/habitloop/internal/app/metrics"
	"github.com/habitloop/habitloop/internal/app/storage"
	"github.com/habitloop/habitloop/pkg/logger"
)

// Reconciler periodically re-derives every profile from the check-in history.
// It implements system.Service.
type Reconciler struct {
	svc      *Service
	users    storage.UserStore
	schedule string
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReconciler builds a reconciler running on the given cron schedule
// (standard five-field syntax).
func NewReconciler(svc *Service, users storage.UserStore, schedule string, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{
		svc:      svc,
		users:    users,
		schedule: schedule,
		log:      log,
	}
}

// Name implements system.Service.
func (r *Reconciler) Name() string { return "reconciler" }

// Start schedules the periodic run.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("reconciler already started")
	}

	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.log.WithError(err).Error("scheduled reconciliation failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.log.WithField("schedule", r.schedule).Info("reconciler started")
	return nil
}

// Stop cancels the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return nil
	}
	stopCtx := r.cron.Stop()
	r.cron = nil
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce reconciles every user and sweeps expired sessions. Failures on
// individual users are logged and do not abort the pass.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if n, err := r.users.DeleteExpiredSessions(ctx, time.Now()); err != nil {
		r.log.WithError(err).Warn("session sweep failed")
	} else if n > 0 {
		r.log.WithField("count", n).Info("expired sessions purged")
	}

	ids, err := r.users.ListUserIDs(ctx)
	if err != nil {
		metrics.RecordReconcile(false)
		return fmt.Errorf("list users: %w", err)
	}

	var failed int
	for _, id := range ids {
		if ctx.Err() != nil {
			metrics.RecordReconcile(false)
			return ctx.Err()
		}
		if _, err := r.svc.Reconcile(ctx, id); err != nil {
			failed++
			r.log.WithError(err).WithField("user_id", id).Error("reconcile failed")
		}
	}

	metrics.RecordReconcile(failed == 0)
	r.log.WithFields(map[string]interface{}{
		"users":  len(ids),
		"failed": failed,
	}).Info("reconciliation pass complete")
	if failed > 0 {
		return fmt.Errorf("reconciliation failed for %d of %d users", failed, len(ids))
	}
	return nil
}
