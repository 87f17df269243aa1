package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/persistence"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

const probeTimeout = 2 * time.Second

// Probe checks one backing dependency. When Check is nil the dependency is
// not configured and Mode is reported instead.
type Probe struct {
	Name  string
	Mode  string
	Check func(context.Context) error
}

// BackendProbes describes the storage backends the service was started with.
func BackendProbes(pg *persistence.Postgres, redis *persistence.Redis) []Probe {
	probes := []Probe{{Name: "postgres", Mode: "memory"}, {Name: "redis", Mode: "disabled"}}
	if pg.PoolHandle() != nil {
		probes[0].Check = pg.Ping
	}
	if redis != nil {
		probes[1].Check = redis.Ping
	}
	return probes
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	startedAt   time.Time
	probes      []Probe
}

func NewHealthHandler(serviceName, version string, probes ...Probe) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, startedAt: time.Now().UTC(), probes: probes}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "alive",
		"service":   h.serviceName,
		"version":   h.version,
		"startedAt": h.startedAt,
	})
}

// Ready runs every configured probe. Unconfigured backends never fail
// readiness; the memory store is a valid deployment.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	deps := make(map[string]any, len(h.probes))
	failed := false
	for _, p := range h.probes {
		switch {
		case p.Check == nil:
			deps[p.Name] = p.Mode
		case p.Check(ctx) != nil:
			deps[p.Name] = "unreachable"
			failed = true
		default:
			deps[p.Name] = "ok"
		}
	}
	if failed {
		return apperrors.NewDomainError("DEPENDENCY_UNAVAILABLE", "one or more dependencies unavailable",
			http.StatusServiceUnavailable, deps)
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": deps})
}
