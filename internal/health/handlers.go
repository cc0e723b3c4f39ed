package health

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/mowaa/booking-payments/internal/common"
)

// Probes holds the dependencies readiness is measured against.
type Probes struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// Handler exposes the liveness and readiness endpoints.
type Handler struct {
	Probes  Probes
	Timeout time.Duration
}

// Live always answers ok while the process is serving.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes PostgreSQL and Redis with a short deadline and reports the
// state of each.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	status := map[string]string{
		"db":    h.probeDB(ctx),
		"redis": h.probeRedis(ctx),
	}
	code := http.StatusOK
	for _, state := range status {
		if state != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	common.JSON(w, code, status)
}

func (h Handler) probeDB(ctx context.Context) string {
	if h.Probes.DB == nil {
		return "not configured"
	}
	if err := h.Probes.DB.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func (h Handler) probeRedis(ctx context.Context) string {
	if h.Probes.Redis == nil {
		return "not configured"
	}
	if err := h.Probes.Redis.Ping(ctx).Err(); err != nil {
		return err.Error()
	}
	return "ok"
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
