package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter-service/internal/pkg/httputil"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the state of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	checkUp       = "up"
	checkDown     = "down"
	checkDegraded = "degraded"

	notConfigured = "not configured"
	healthVersion = "1.0.0"
)

// HealthChecker reports on the subscriber store, the lock backend and the
// notification transport. db and redisClient may be nil.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	transport   string
	startTime   time.Time
}

// NewHealthChecker creates a checker for the given dependencies.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, transport string) *HealthChecker {
	return &HealthChecker{db: db, redisClient: redisClient, transport: transport, startTime: time.Now()}
}

// HandleHealth always answers 200 with the component states.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  overallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleReadiness answers 503 while subscribers cannot be stored.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	overall := overallStatus(checks)

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  status == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) check(ctx context.Context) map[string]ComponentCheck {
	checkers := map[string]func(context.Context) ComponentCheck{
		"subscribers":   hc.checkSubscriberStore,
		"locks":         hc.checkLocks,
		"notifications": hc.checkNotifications,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	checks := make(map[string]ComponentCheck, len(checkers))
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker func(context.Context) ComponentCheck) {
			defer wg.Done()
			c := checker(ctx)
			mu.Lock()
			checks[name] = c
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()
	return checks
}

// checkSubscriberStore verifies the database answers and is migrated.
func (hc *HealthChecker) checkSubscriberStore(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: checkDown, Message: notConfigured}
	}
	qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	var migrated bool
	err := hc.db.QueryRowContext(qctx, `SELECT to_regclass('newsletter_subscribers') IS NOT NULL`).Scan(&migrated)
	latency := time.Since(start)
	if err == nil && !migrated {
		return ComponentCheck{Status: checkDown, Latency: latency.String(), Message: "newsletter_subscribers missing, run cmd/migrate"}
	}
	return timed(latency, err, time.Second)
}

// checkLocks reports Redis when configured. Without Redis the service uses
// PostgreSQL advisory locks, which is not a fault.
func (hc *HealthChecker) checkLocks(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: checkUp, Message: "postgres advisory locks"}
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pctx).Err()
	return timed(time.Since(start), err, 500*time.Millisecond)
}

func (hc *HealthChecker) checkNotifications(context.Context) ComponentCheck {
	if hc.transport == "" {
		return ComponentCheck{Status: checkDown, Message: notConfigured}
	}
	return ComponentCheck{Status: checkUp, Message: "transport " + hc.transport}
}

func timed(latency time.Duration, err error, slow time.Duration) ComponentCheck {
	switch {
	case err != nil:
		return ComponentCheck{Status: checkDown, Latency: latency.String(), Message: err.Error()}
	case latency > slow:
		return ComponentCheck{Status: checkDegraded, Latency: latency.String(), Message: "slow response"}
	}
	return ComponentCheck{Status: checkUp, Latency: latency.String()}
}

// overallStatus is "unhealthy" when a configured subscriber store is down and
// "degraded" when any other configured component is not up.
func overallStatus(checks map[string]ComponentCheck) string {
	if c, ok := checks["subscribers"]; ok && c.Status == checkDown && c.Message != notConfigured {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == checkDegraded || (c.Status == checkDown && c.Message != notConfigured) {
			return "degraded"
		}
	}
	return "healthy"
}

// formatUptime renders d like "3d 4h 12m 5s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	days, hours := total/86400, total/3600%24
	minutes, seconds := total/60%60, total%60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
