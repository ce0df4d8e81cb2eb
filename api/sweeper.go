/*
sweeper.go - Background expiry sweeper for pending undo windows

PURPOSE:
  Periodically removes expired pending-undo records so the in-memory map
  does not grow unbounded and the metrics reflect expirations promptly.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the actual expiry decision to the purchase coordinator,
    which compares stored deadlines against the clock
  - Purely housekeeping: correctness never depends on the sweep, because
    every lookup re-checks the deadline itself

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 second)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewUndoSweeper(coordinator)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - purchase/coordinator.go: SweepExpired and the pending-undo map
*/
package api

import (
	"log"
	"sync"
	"time"

	"github.com/MKrabs/Snablo-app/metrics"
	"github.com/MKrabs/Snablo-app/purchase"
)

// UndoSweeper periodically drops expired pending-undo windows.
type UndoSweeper struct {
	Coordinator   *purchase.Coordinator
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewUndoSweeper creates a new sweeper.
func NewUndoSweeper(coordinator *purchase.Coordinator) *UndoSweeper {
	return &UndoSweeper{
		Coordinator:   coordinator,
		CheckInterval: 1 * time.Second,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (us *UndoSweeper) Start() {
	us.mu.Lock()
	defer us.mu.Unlock()

	if !us.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	us.ticker = time.NewTicker(us.CheckInterval)
	us.wg.Add(1)

	go us.run()

	log.Printf("[Sweeper] Started with check interval: %v", us.CheckInterval)
}

// Stop stops the sweeper.
func (us *UndoSweeper) Stop() {
	us.mu.Lock()
	defer us.mu.Unlock()

	if us.ticker != nil {
		us.ticker.Stop()
		close(us.stop)
		us.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (us *UndoSweeper) run() {
	defer us.wg.Done()

	for {
		select {
		case <-us.ticker.C:
			us.sweep()
		case <-us.stop:
			return
		}
	}
}

func (us *UndoSweeper) sweep() {
	expired := us.Coordinator.SweepExpired()
	if expired > 0 {
		metrics.UndoWindowsExpired.Add(float64(expired))
		log.Printf("[Sweeper] Expired %d undo window(s)", expired)
	}
}

// SweepNow triggers an immediate sweep (for testing/admin).
func (us *UndoSweeper) SweepNow() int {
	expired := us.Coordinator.SweepExpired()
	if expired > 0 {
		metrics.UndoWindowsExpired.Add(float64(expired))
	}
	return expired
}
