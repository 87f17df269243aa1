package domain

import "time"

// Token represents issued access token metadata.
type Token struct {
	SubjectID string
	Role      UserRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
