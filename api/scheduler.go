/*
scheduler.go - Periodic expiration sweep

PURPOSE:
  Drives RunExpiration across all accounts on a fixed interval so stale
  accrual batches get debited without any external cron. Each completed
  sweep that expired points is recorded in expiration_runs for audit.

DESIGN:
  - One background goroutine with a ticker; sweeps run immediately on start
  - Per-account sweeps are independent; one failing account does not stop
    the pass, the error is logged and the pass continues
  - Safe to run concurrently with request traffic: the wallet serializes
    per account, and the sweep itself is idempotent

USAGE:
  scheduler := NewExpirationScheduler(wallet, store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/expiration.go: the sweep itself
  - handlers.go: Expire endpoint (manual trigger)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/bonus-ledger/ledger"
	"github.com/warp/bonus-ledger/store/sqlite"
	"github.com/warp/bonus-ledger/wallet"
)

// ExpirationScheduler sweeps stale accrual batches on an interval.
type ExpirationScheduler struct {
	Wallet        *wallet.Service
	Store         *sqlite.Store // nil disables run recording
	CheckInterval time.Duration
	RetentionDays int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirationScheduler creates a scheduler with the default retention
// window and a 1 hour check interval.
func NewExpirationScheduler(w *wallet.Service, store *sqlite.Store) *ExpirationScheduler {
	return &ExpirationScheduler{
		Wallet:        w,
		Store:         store,
		CheckInterval: 1 * time.Hour,
		RetentionDays: 0, // wallet applies the platform default
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (es *ExpirationScheduler) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[ExpirationSweep] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[ExpirationSweep] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the scheduler. Safe to call more than once and before Start.
func (es *ExpirationScheduler) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker == nil {
		return
	}
	es.ticker.Stop()
	es.ticker = nil
	close(es.stop)
	es.wg.Wait()
	log.Println("[ExpirationSweep] Stopped")
}

func (es *ExpirationScheduler) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.SweepAll(context.Background())

	for {
		select {
		case <-es.ticker.C:
			es.SweepAll(context.Background())
		case <-es.stop:
			return
		}
	}
}

// SweepAll runs one expiration pass over every known account and returns
// the total expired amount.
func (es *ExpirationScheduler) SweepAll(ctx context.Context) int64 {
	ids, err := es.Wallet.Accounts(ctx)
	if err != nil {
		log.Printf("[ExpirationSweep] Failed to list accounts: %v", err)
		return 0
	}

	var total int64
	for _, id := range ids {
		result, err := es.Wallet.RunExpiration(ctx, id, es.RetentionDays)
		if err != nil {
			log.Printf("[ExpirationSweep] Account %s: %v", id, err)
			continue
		}
		if result.Expired == 0 {
			continue
		}

		total += result.Expired
		expiredTotal.Add(float64(result.Expired))
		log.Printf("[ExpirationSweep] Account %s: expired %d points, balance %d",
			id, result.Expired, result.NewBalance)

		if es.Store != nil {
			retention := es.RetentionDays
			if retention <= 0 {
				retention = ledger.DefaultRetentionDays
			}
			run := sqlite.ExpirationRun{
				ID:            uuid.NewString(),
				AccountID:     string(id),
				RetentionDays: retention,
				Expired:       result.Expired,
				BalanceAfter:  result.NewBalance,
				RanAt:         time.Now().UTC(),
			}
			if err := es.Store.SaveExpirationRun(ctx, run); err != nil {
				log.Printf("[ExpirationSweep] Failed to record run for %s: %v", id, err)
			}
		}
	}

	return total
}
