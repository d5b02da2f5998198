package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shepherdvovkes/reyestr/internal/config"
)

const (
	leaseLiveness = "client_liveness"
	leaseReclaim  = "task_reclaim"
)

// Sweeper runs the two periodic maintenance jobs: marking silent clients
// inactive and returning their stalled tasks to the queue.
//
// Each run is guarded by a row in sweep_leases so that when several server
// instances share one database, only one of them executes a given sweep per
// interval. A lease that expires without renewal is taken over by whichever
// instance ticks next.
type Sweeper struct {
	db      *gorm.DB
	clients *ClientService
	tasks   *TaskService
	cfg     config.TaskConfig
	holder  string
	wg      sync.WaitGroup
}

// NewSweeper creates a Sweeper instance.
func NewSweeper(db *gorm.DB, clients *ClientService, tasks *TaskService, cfg config.TaskConfig) *Sweeper {
	hostname, _ := os.Hostname()
	return &Sweeper{
		db:      db,
		clients: clients,
		tasks:   tasks,
		cfg:     cfg,
		holder:  hostname + "/" + uuid.NewString(),
	}
}

// Start launches the sweep loops. They stop when ctx is cancelled; call Wait
// to block until they have drained.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, leaseLiveness, s.cfg.LivenessInterval, s.sweepLiveness)
	go s.loop(ctx, leaseReclaim, s.cfg.ReclaimInterval, s.sweepReclaim)
	slog.Info("sweeper started",
		"holder", s.holder,
		"liveness_interval", s.cfg.LivenessInterval,
		"reclaim_interval", s.cfg.ReclaimInterval)
}

// Wait blocks until both sweep loops have exited.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.acquireLease(ctx, name, interval) {
				continue
			}
			sweep(ctx)
		}
	}
}

// acquireLease takes or renews the named sweep lease for one interval.
// The upsert succeeds when the lease is free, expired, or already ours.
func (s *Sweeper) acquireLease(ctx context.Context, name string, ttl time.Duration) bool {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Exec(`
		INSERT INTO sweep_leases (name, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE sweep_leases.expires_at < ? OR sweep_leases.holder = ?`,
		name, s.holder, now.Add(ttl), now, s.holder)
	if res.Error != nil {
		slog.Error("sweep lease acquisition failed", "lease", name, "error", res.Error)
		return false
	}
	return res.RowsAffected > 0
}

func (s *Sweeper) sweepLiveness(ctx context.Context) {
	marked, err := s.clients.MarkInactive(ctx, s.cfg.InactivityThreshold)
	if err != nil {
		slog.Error("liveness sweep failed", "error", err)
		return
	}
	if marked > 0 {
		slog.Info("clients marked inactive", "count", marked)
	}
}

func (s *Sweeper) sweepReclaim(ctx context.Context) {
	reclaimed, err := s.tasks.ReclaimStalled(ctx, s.cfg.InactivityThreshold)
	if err != nil {
		slog.Error("reclamation sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		slog.Info("stalled tasks returned to queue", "count", reclaimed)
	}
}
