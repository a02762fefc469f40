package syncer

import (
	"context"
	"sync"
	"time"

	"mailbridge/models"
	"mailbridge/utils"
)

// Scheduler drives periodic sync passes over every enabled account. Each
// account is serialized behind its own lock so a slow pass never overlaps
// the next tick's pass for the same mailbox.
type Scheduler struct {
	service  *Service
	interval time.Duration
	// stoppedRetryAfter, when positive, retries STOPPED accounts after the
	// given cool-down. Zero leaves them stopped until manual remediation.
	stoppedRetryAfter time.Duration
	log               *utils.Logger

	locks sync.Map // account id -> *sync.Mutex
}

func NewScheduler(service *Service, interval, stoppedRetryAfter time.Duration, log *utils.Logger) *Scheduler {
	if log == nil {
		log = utils.Log
	}
	return &Scheduler{
		service:           service,
		interval:          interval,
		stoppedRetryAfter: stoppedRetryAfter,
		log:               log,
	}
}

// Run loops until the context is cancelled, driving one pass per interval.
// The first pass starts immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("sync scheduler started, interval %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runPass(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("sync scheduler stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	accounts, err := s.service.store.SyncableAccounts(ctx)
	if err != nil {
		s.log.Error("listing accounts for sync pass: %v", err)
		return
	}

	var wg sync.WaitGroup
	for i := range accounts {
		account := accounts[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.syncOne(ctx, &account)
		}()
	}
	wg.Wait()

	s.retryStopped(ctx)
}

// syncOne runs a pull under the account's lock. A pass still running from a
// previous tick makes this one a no-op for that account.
func (s *Scheduler) syncOne(ctx context.Context, account *models.Account) {
	mu := s.lockFor(account.ID)
	if !mu.TryLock() {
		s.log.WithField("account", account.Email).Debug("previous sync pass still running, skipping")
		return
	}
	defer mu.Unlock()

	if err := s.service.Pull(ctx, account); err != nil {
		// Pull already classified, logged and published the failure.
		return
	}
}

// retryStopped gives STOPPED accounts another chance after the configured
// cool-down. A successful pass re-enables the account.
func (s *Scheduler) retryStopped(ctx context.Context) {
	if s.stoppedRetryAfter <= 0 {
		return
	}

	cutoff := time.Now().Add(-s.stoppedRetryAfter)
	stopped, err := s.service.store.StoppedAccounts(ctx, cutoff)
	if err != nil {
		s.log.Error("listing stopped accounts for retry: %v", err)
		return
	}

	for i := range stopped {
		account := stopped[i]
		mu := s.lockFor(account.ID)
		if !mu.TryLock() {
			continue
		}

		log := s.log.WithField("account", account.Email)
		log.Info("retrying stopped account after cool-down")
		if err := s.service.Pull(ctx, &account); err != nil {
			mu.Unlock()
			continue
		}
		if err := s.service.store.UpdateSyncState(ctx, account.ID, models.SyncEnabled, ""); err != nil {
			log.Error("re-enabling recovered account: %v", err)
		} else {
			log.Info("stopped account recovered, sync re-enabled")
		}
		mu.Unlock()
	}
}

func (s *Scheduler) lockFor(accountID int64) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(accountID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
