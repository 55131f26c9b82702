package health

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"kbs-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DBPinger is optional for health check. If nil, the database is reported as
// not configured.
type DBPinger interface {
	Ping() error
}

// Result is the /health/json payload.
type Result struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Playback     PlaybackInfo         `json:"playback"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64  `json:"uptimeSeconds"`
	HeapMB        int    `json:"heapMb"`
	Goroutines    int    `json:"goroutines"`
	GoVersion     string `json:"goVersion"`
}

type TrafficInfo struct {
	TotalRequests   int     `json:"totalRequests"`
	FailedCount     int     `json:"failedCount"`
	SuccessRate     string  `json:"successRate"`
	AvgResponseTime float64 `json:"avgResponseTimeMs"`
}

type PlaybackInfo struct {
	ActiveSessions int `json:"activeSessions"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// Dependency states.
const (
	depConnected     = "connected"
	depError         = "error"
	depNotConfigured = "not_configured"
)

// Collect gathers dependency status, traffic counters and runtime info.
// Missing dependencies degrade to in-memory fallbacks, so only a configured
// dependency that fails to answer marks the service "issue".
func Collect(ctx context.Context, rdb *redis.Client, db DBPinger, activeSessions int) Result {
	result := Result{
		Status:       "ok",
		Dependencies: make(map[string]DepStatus),
		Playback:     PlaybackInfo{ActiveSessions: activeSessions},
		Traffic:      TrafficInfo{SuccessRate: "100"},
	}

	dbStatus := DepStatus{Status: depNotConfigured}
	if db != nil {
		start := time.Now()
		if err := db.Ping(); err == nil {
			ms := time.Since(start).Milliseconds()
			dbStatus = DepStatus{Status: depConnected, PingMs: &ms}
		} else {
			dbStatus.Status = depError
		}
	}
	result.Dependencies["database"] = dbStatus

	startMs := time.Now().UnixMilli()
	redisStatus := DepStatus{Status: depNotConfigured}
	if rdb != nil {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err == nil {
			ms := time.Since(start).Milliseconds()
			redisStatus = DepStatus{Status: depConnected, PingMs: &ms}
			startMs = readTraffic(ctx, rdb, &result.Traffic, startMs)
		} else {
			redisStatus.Status = depError
		}
	}
	result.Dependencies["redis"] = redisStatus

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := (time.Now().UnixMilli() - startMs) / 1000
	if uptime < 0 {
		uptime = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptime,
		HeapMB:        int(m.HeapInuse / 1024 / 1024),
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
	}

	if dbStatus.Status == depError || redisStatus.Status == depError {
		result.Status = "issue"
	}
	return result
}

// readTraffic fills t from the HealthMarker counters and returns the recorded
// start time, seeding it on first use.
func readTraffic(ctx context.Context, rdb *redis.Client, t *TrafficInfo, now int64) int64 {
	total, _ := rdb.Get(ctx, middleware.KeyReqTotal).Int()
	failed, _ := rdb.Get(ctx, middleware.KeyReqErrors).Int()
	timeSum, _ := rdb.Get(ctx, middleware.KeyResTime).Float64()

	t.TotalRequests = total
	t.FailedCount = failed
	if total > 0 {
		t.SuccessRate = strconv.FormatFloat(float64(total-failed)/float64(total)*100, 'f', 1, 64)
		t.AvgResponseTime = timeSum / float64(total)
	}

	startStr, _ := rdb.Get(ctx, middleware.KeyStartTime).Result()
	if startStr == "" {
		rdb.Set(ctx, middleware.KeyStartTime, now, 0)
		return now
	}
	if v, err := strconv.ParseInt(startStr, 10, 64); err == nil {
		return v
	}
	return now
}
