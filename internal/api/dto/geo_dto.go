package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// ZoneCreateRequest payload.
type ZoneCreateRequest struct {
	Name string `json:"name"`
}

// ZoneOfficerRequest sets or clears (null) the zone officer.
type ZoneOfficerRequest struct {
	OfficerID *string `json:"officerId"`
}

// WardCreateRequest payload.
type WardCreateRequest struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// ZoneResponse view.
type ZoneResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OfficerID *string   `json:"officerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// WardResponse view.
type WardResponse struct {
	ID        string    `json:"id"`
	Number    int       `json:"wardNumber"`
	Name      string    `json:"name"`
	ZoneID    string    `json:"zoneId"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewZoneResponse(z *domain.Zone) ZoneResponse {
	return ZoneResponse{ID: z.ID, Name: z.Name, OfficerID: z.OfficerID, CreatedAt: z.CreatedAt}
}

func NewWardResponse(w *domain.Ward) WardResponse {
	return WardResponse{ID: w.ID, Number: w.Number, Name: w.Name, ZoneID: w.ZoneID, CreatedAt: w.CreatedAt}
}
