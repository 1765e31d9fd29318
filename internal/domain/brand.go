package domain

import "time"

// Company represents a tenant. Every collection and setting is scoped to
// exactly one company through its brand code.
type Company struct {
	ID          int64
	Name        string
	BrandCode   string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
