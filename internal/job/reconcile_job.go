package job

import (
	"context"
	"sync"
	"time"

	"goldpay/internal/service"

	"github.com/rs/zerolog"
)

// Reconciler runs matcher passes.
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID string) (*service.ReconcileReport, error)
	ReconcileAll(ctx context.Context) ([]*service.ReconcileReport, error)
}

// ReconcileJob sweeps every owner with pending records on an interval and,
// between sweeps, runs passes for owners that were triggered by a transfer or
// an ingested feed. Triggers for the same owner coalesce.
type ReconcileJob struct {
	reconciler Reconciler
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
}

func NewReconcileJob(reconciler Reconciler, interval time.Duration, logger zerolog.Logger) *ReconcileJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconcileJob{
		reconciler: reconciler,
		stopCh:     make(chan struct{}),
		interval:   interval,
		logger:     logger.With().Str("component", "ReconcileJob").Logger(),
		pending:    make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// Trigger queues a pass for ownerID and returns immediately.
func (j *ReconcileJob) Trigger(ownerID string) {
	j.mu.Lock()
	j.pending[ownerID] = struct{}{}
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	j.logger.Info().Dur("interval", j.interval).Msg("reconcile job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("context done, reconcile job exiting")
			return
		case <-j.stopCh:
			j.logger.Info().Msg("reconcile job stopped")
			return
		case <-j.wake:
			j.drainTriggered(ctx)
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *ReconcileJob) takePending() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	owners := make([]string, 0, len(j.pending))
	for owner := range j.pending {
		owners = append(owners, owner)
	}
	j.pending = make(map[string]struct{})
	return owners
}

func (j *ReconcileJob) drainTriggered(ctx context.Context) {
	for _, owner := range j.takePending() {
		if ctx.Err() != nil {
			return
		}
		if _, err := j.reconciler.Reconcile(ctx, owner); err != nil {
			// the next sweep picks the owner up again
			j.logger.Warn().Err(err).Str("owner_id", owner).Msg("triggered pass failed")
		}
	}
}

func (j *ReconcileJob) sweep(ctx context.Context) {
	reports, err := j.reconciler.ReconcileAll(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("sweep finished with errors")
	}

	matched := 0
	for _, r := range reports {
		matched += r.Matched
	}
	if len(reports) > 0 {
		j.logger.Info().Int("owners", len(reports)).Int("matched", matched).Msg("sweep finished")
	}
}

var _ service.ReconcileTrigger = (*ReconcileJob)(nil)
