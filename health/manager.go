package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/servicehub-client/types"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Duration  time.Duration `json:"duration"`
}

type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	Unknown   int `json:"unknown"`
}

type Report struct {
	Status    Status           `json:"status"`
	Service   string           `json:"service"`
	Version   string           `json:"version,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    time.Duration    `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
	Summary   Summary          `json:"summary"`
}

// Names returns the check names in a stable order.
func (r Report) Names() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Checker func(ctx context.Context) Check

type Manager struct {
	logger       types.Logger
	service      string
	version      string
	checkers     map[string]Checker
	mu           sync.RWMutex
	startTime    time.Time
	checkTimeout time.Duration
}

func NewManager(logger types.Logger, service, version string) *Manager {
	return &Manager{
		logger:       logger,
		service:      service,
		version:      version,
		checkers:     make(map[string]Checker),
		startTime:    time.Now(),
		checkTimeout: 5 * time.Second,
	}
}

func (hm *Manager) RegisterChecker(name string, checker Checker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

func (hm *Manager) Check(ctx context.Context) Report {
	hm.mu.RLock()
	checkers := make(map[string]Checker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(checkCtx)
	results := make(map[string]Check, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		name, checker := name, checker
		g.Go(func() error {
			result := hm.executeCheck(gCtx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		hm.logger.Error("Error during health checks", zap.Error(err))
	}

	return hm.buildReport(results)
}

func (hm *Manager) executeCheck(ctx context.Context, name string, checker Checker) Check {
	start := time.Now()
	resultChan := make(chan Check, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- Check{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("health check panicked: %v", r),
				}
			}
		}()

		resultChan <- checker(ctx)
	}()

	var result Check
	select {
	case result = <-resultChan:
	case <-ctx.Done():
		result = Check{Status: StatusUnhealthy, Message: "health check timeout"}
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)
	return result
}

func (hm *Manager) buildReport(results map[string]Check) Report {
	summary := Summary{Total: len(results)}

	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusUnhealthy:
			summary.Unhealthy++
			overall = StatusUnhealthy
		default:
			summary.Unknown++
			if overall == StatusHealthy {
				overall = StatusUnknown
			}
		}
	}

	return Report{
		Status:    overall,
		Service:   hm.service,
		Version:   hm.version,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		Checks:    results,
		Summary:   summary,
	}
}
