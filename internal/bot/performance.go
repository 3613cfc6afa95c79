package bot

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"discord-automod/internal/engine/performance"

	"go.uber.org/zap"
)

const highGatewayLatency = 250 * time.Millisecond

// PerfTransport wraps http.RoundTripper to track REST latency
type PerfTransport struct {
	Base http.RoundTripper
}

func (t *PerfTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	status := "error"
	if err == nil {
		status = statusClass(resp.StatusCode)
	}
	performance.RecordREST(status, time.Since(start))
	return resp, err
}

// statusClass maps 404 to "4xx"
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// monitorHeartbeat publishes the gateway heartbeat latency until ctx is done
func (b *Bot) monitorHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latency := b.Session.HeartbeatLatency()
			performance.SetGatewayLatency(latency)
			if latency > highGatewayLatency {
				b.Logger.Warn("High gateway latency", zap.Duration("latency", latency))
			}
		}
	}
}
