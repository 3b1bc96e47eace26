package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety/oracle/log"
)

// HealthCheck is a single named check run by the HealthChecker.
type HealthCheck interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthChecker runs every registered check on an interval and keeps the latest result of each.
type HealthChecker struct {
	checks   map[string]HealthCheck
	mutex    sync.RWMutex
	interval time.Duration
	timeout  time.Duration
	status   map[string]HealthStatus
}

type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

func NewHealthChecker(interval time.Duration) *HealthChecker {
	return &HealthChecker{
		checks:   make(map[string]HealthCheck),
		status:   make(map[string]HealthStatus),
		interval: interval,
		timeout:  interval,
	}
}

// AddCheck registers check. It reports unhealthy until it has run once.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	name := check.Name()
	hc.checks[name] = check
	hc.status[name] = HealthStatus{
		Healthy:   false,
		LastError: "not checked yet",
	}

	log.Debugf("health check added: %s", name)
}

// Start runs the checks immediately and then on every tick until ctx is done.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			hc.RunChecks(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunChecks runs all checks concurrently and waits for them.
func (hc *HealthChecker) RunChecks(ctx context.Context) {
	hc.mutex.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, hc.timeout)
			defer cancel()
			err := check.Check(cctx)

			st := HealthStatus{Healthy: err == nil, LastCheck: time.Now()}
			if err != nil {
				st.LastError = err.Error()
				log.Warnf("health check failed - %s: %v", check.Name(), err)
			}

			hc.mutex.Lock()
			hc.status[check.Name()] = st
			hc.mutex.Unlock()
		}(check)
	}
	wg.Wait()
}

func (hc *HealthChecker) GetStatus() map[string]HealthStatus {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	result := make(map[string]HealthStatus, len(hc.status))
	for name, status := range hc.status {
		result[name] = status
	}

	return result
}

func (hc *HealthChecker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	for _, status := range hc.status {
		if !status.Healthy {
			return false
		}
	}

	return true
}

// FuncCheck adapts a function to HealthCheck.
type FuncCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

func NewFuncCheck(name string, checkFunc func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{
		name:      name,
		checkFunc: checkFunc,
	}
}

func (fc *FuncCheck) Check(ctx context.Context) error {
	return fc.checkFunc(ctx)
}

func (fc *FuncCheck) Name() string {
	return fc.name
}

// ChainCheck passes while the node answers eth_blockNumber.
func ChainCheck(blockNumber func(ctx context.Context) (uint64, error)) HealthCheck {
	return NewFuncCheck("chain", func(ctx context.Context) error {
		if _, err := blockNumber(ctx); err != nil {
			return fmt.Errorf("block number: %w", err)
		}
		return nil
	})
}

// RegistryCheck passes once at least one oracle is registered.
func RegistryCheck(size func() int) HealthCheck {
	return NewFuncCheck("registry", func(context.Context) error {
		if size() == 0 {
			return fmt.Errorf("no oracle registered")
		}
		return nil
	})
}
