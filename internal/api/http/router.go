package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Geo            *handlers.GeoHandler
	Issues         *handlers.IssuesHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    *RateLimiter
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	limit := cfg.RateLimiter.Handler()

	authGroup := app.Group("/auth", limit)
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, limit)
	api.Get("/me", cfg.Auth.Me)
	api.Post("/me/password", cfg.Auth.ChangePassword)

	superAdmin := auth.RequireRole(domain.RoleSuperAdmin)
	supervisors := auth.RequireRole(domain.RoleSuperAdmin, domain.RoleZoneOfficer, domain.RoleWardEngineer)
	staff := auth.RequireRole(domain.RoleSuperAdmin, domain.RoleZoneOfficer, domain.RoleWardEngineer, domain.RoleFieldWorker)

	admin := api.Group("/admin", superAdmin)
	admin.Post("/users", cfg.Users.CreateUser)
	admin.Get("/users", cfg.Users.ListUsers)
	admin.Get("/users/:id", cfg.Users.GetUser)
	admin.Patch("/users/:id", cfg.Users.UpdateUser)
	admin.Post("/users/:id/deactivate", cfg.Users.Deactivate)
	admin.Post("/users/:id/reactivate", cfg.Users.Reactivate)
	admin.Post("/users/:id/reassign-work", cfg.Users.ReassignWork)
	admin.Get("/users/:id/activity", cfg.Users.Activity)
	admin.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": cfg.Metrics.Snapshot()})
	})

	api.Get("/zones", cfg.Geo.ListZones)
	api.Get("/zones/:id", cfg.Geo.GetZone)
	api.Get("/zones/:id/wards", cfg.Geo.ListWards)
	api.Get("/wards", cfg.Geo.ListWards)
	api.Get("/wards/:id", cfg.Geo.GetWard)
	api.Post("/zones", superAdmin, cfg.Geo.CreateZone)
	api.Put("/zones/:id/officer", superAdmin, cfg.Geo.SetOfficer)
	api.Delete("/zones/:id", superAdmin, cfg.Geo.DeleteZone)
	api.Post("/zones/:id/wards", superAdmin, cfg.Geo.CreateWard)

	issues := api.Group("/issues")
	issues.Post("/", cfg.Issues.Report)
	issues.Get("/", cfg.Issues.ListIssues)
	issues.Get("/summary", cfg.Issues.Summary)
	issues.Get("/ticket/:ticket", cfg.Issues.GetByTicket)
	issues.Get("/:id", cfg.Issues.GetIssue)
	issues.Get("/:id/history", cfg.Issues.History)
	issues.Get("/:id/evidence", cfg.Issues.ListEvidence)
	issues.Post("/:id/evidence", cfg.Issues.AttachEvidence)
	issues.Post("/:id/assign", supervisors, cfg.Issues.Assign)
	issues.Post("/:id/auto-assign", supervisors, cfg.Issues.AutoAssign)
	issues.Post("/:id/reassign", supervisors, cfg.Issues.Reassign)
	issues.Post("/:id/start", staff, cfg.Issues.Start)
	issues.Post("/:id/resolve", staff, cfg.Issues.Resolve)
	issues.Post("/:id/verify", supervisors, cfg.Issues.Verify)
	issues.Post("/:id/reopen", supervisors, cfg.Issues.Reopen)

	statsGroup := api.Group("/stats")
	statsGroup.Get("/sla-policy", cfg.Stats.Policy)
	statsGroup.Get("/dashboard", superAdmin, cfg.Stats.Dashboard)
	statsGroup.Get("/zones/:id", cfg.Stats.Zone)
	statsGroup.Get("/wards/:id", cfg.Stats.Ward)
	statsGroup.Get("/wards/:id/detail", cfg.Stats.WardDetail)
	statsGroup.Get("/users/:id", cfg.Stats.User)
}
