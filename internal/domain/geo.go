package domain

import "time"

// Zone groups wards under an optional zone officer.
type Zone struct {
	ID        string
	Name      string
	OfficerID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ward belongs to exactly one zone. Number is unique within the zone.
type Ward struct {
	ID        string
	Number    int
	Name      string
	ZoneID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
