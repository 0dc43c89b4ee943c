package provision

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor removes stale run directories on a cron schedule
type Janitor struct {
	prov     *Provisioner
	schedule cron.Schedule
	maxAge   time.Duration
	// Protect reports directories that must survive cleanup, typically
	// the active run's directory.
	protect func() map[string]bool

	mu       sync.Mutex
	lastRun  time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a janitor over the provisioner's runs root
func NewJanitor(prov *Provisioner, cronExpr string, maxAge time.Duration, protect func() map[string]bool) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	if protect == nil {
		protect = func() map[string]bool { return nil }
	}
	return &Janitor{
		prov:     prov,
		schedule: schedule,
		maxAge:   maxAge,
		protect:  protect,
		stopChan: make(chan struct{}),
	}, nil
}

// NextRun returns the next scheduled cleanup time
func (j *Janitor) NextRun() time.Time {
	return j.schedule.Next(time.Now())
}

// ShouldRun returns true if a cleanup is due
func (j *Janitor) ShouldRun() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	lastRun := j.lastRun
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(j.schedule.Next(lastRun))
}

// RunOnce performs one cleanup pass immediately
func (j *Janitor) RunOnce() (int, error) {
	j.mu.Lock()
	j.lastRun = time.Now()
	j.mu.Unlock()
	return j.prov.CleanupStale(j.maxAge, j.protect())
}

// Start begins the janitor loop. Blocks until Stop is called, so run it
// on its own goroutine.
func (j *Janitor) Start() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			if !j.ShouldRun() {
				continue
			}
			if n, err := j.RunOnce(); err != nil {
				log.Printf("run cleanup failed: %v", err)
			} else if n > 0 {
				log.Printf("removed %d stale run directories", n)
			}
		}
	}
}

// Stop stops the janitor loop
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}
