package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the db, redis and tika probes served by /readyz. A nil
// dependency is reported as not configured.
func BuildReadinessChecks(cfg config.Config, pool Pinger, rdb redis.Cmdable) []httpserver.ReadinessCheck {
	client := &http.Client{Timeout: 2 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return []httpserver.ReadinessCheck{
		{Name: "db", Check: func(ctx context.Context) error {
			if pool == nil {
				return fmt.Errorf("db not configured")
			}
			return pool.Ping(ctx)
		}},
		{Name: "redis", Check: func(ctx context.Context) error {
			if rdb == nil {
				return fmt.Errorf("redis not configured")
			}
			return rdb.Ping(ctx).Err()
		}},
		{Name: "tika", Check: func(ctx context.Context) error {
			if cfg.TikaURL == "" {
				return fmt.Errorf("tika url not configured")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.TikaURL, "/")+"/version", nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			return fmt.Errorf("tika status %d", resp.StatusCode)
		}},
	}
}
