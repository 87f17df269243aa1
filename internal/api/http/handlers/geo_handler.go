package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/service"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util/errorutil"
)

// GeoHandler serves zones and wards.
type GeoHandler struct {
	geo *service.GeoService
}

// NewGeoHandler constructs handler.
func NewGeoHandler(geo *service.GeoService) *GeoHandler {
	return &GeoHandler{geo: geo}
}

// CreateZone handles POST /api/zones.
func (h *GeoHandler) CreateZone(c *fiber.Ctx) error {
	var req dto.ZoneCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	zone, err := h.geo.CreateZone(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewZoneResponse(zone)})
}

// ListZones handles GET /api/zones.
func (h *GeoHandler) ListZones(c *fiber.Ctx) error {
	zones, err := h.geo.ListZones(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.ZoneResponse, 0, len(zones))
	for i := range zones {
		resp = append(resp, dto.NewZoneResponse(&zones[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// GetZone handles GET /api/zones/:id.
func (h *GeoHandler) GetZone(c *fiber.Ctx) error {
	zone, err := h.geo.GetZone(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewZoneResponse(zone)})
}

// SetOfficer handles PUT /api/zones/:id/officer.
func (h *GeoHandler) SetOfficer(c *fiber.Ctx) error {
	var req dto.ZoneOfficerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	zone, err := h.geo.SetZoneOfficer(c.UserContext(), c.Params("id"), req.OfficerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewZoneResponse(zone)})
}

// DeleteZone handles DELETE /api/zones/:id.
func (h *GeoHandler) DeleteZone(c *fiber.Ctx) error {
	if err := h.geo.DeleteZone(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateWard handles POST /api/zones/:id/wards.
func (h *GeoHandler) CreateWard(c *fiber.Ctx) error {
	var req dto.WardCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ward, err := h.geo.CreateWard(c.UserContext(), c.Params("id"), req.Number, req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewWardResponse(ward)})
}

// ListWards handles GET /api/wards and GET /api/zones/:id/wards.
func (h *GeoHandler) ListWards(c *fiber.Ctx) error {
	zoneID := c.Params("id")
	if zoneID == "" {
		zoneID = c.Query("zoneId")
	}
	wards, err := h.geo.ListWards(c.UserContext(), zoneID)
	if err != nil {
		return err
	}
	resp := make([]dto.WardResponse, 0, len(wards))
	for i := range wards {
		resp = append(resp, dto.NewWardResponse(&wards[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// GetWard handles GET /api/wards/:id.
func (h *GeoHandler) GetWard(c *fiber.Ctx) error {
	ward, err := h.geo.GetWard(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWardResponse(ward)})
}
