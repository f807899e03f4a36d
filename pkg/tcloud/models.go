package tcloud

import "time"

// UserPermissions is the normalized answer to "what may this user touch".
// It is the unit stored in the permission cache, so its JSON form is part
// of the cache contract: FetchedAt round-trips as RFC 3339 and the slices
// always serialize as arrays, never null.
type UserPermissions struct {
	// Email is the user the permissions belong to.
	Email string `json:"email"`

	// Customers lists the customer (cloud) identifiers the user may access.
	Customers []string `json:"customers"`

	// Roles lists the user's roles across those customers, deduplicated.
	Roles []string `json:"roles"`

	// Permissions lists the effective permission strings, including the
	// configured default read permissions when the user has any customer.
	Permissions []string `json:"permissions"`

	// FetchedAt records when this answer was produced by the API.
	FetchedAt time.Time `json:"fetched_at"`
}

// IsEmpty reports whether the user has no customer access at all.
func (p *UserPermissions) IsEmpty() bool {
	return len(p.Customers) == 0 && len(p.Roles) == 0 && len(p.Permissions) == 0
}

// Age returns how long ago the permissions were fetched.
func (p *UserPermissions) Age() time.Duration {
	return time.Since(p.FetchedAt)
}

// UserProfile is the cosmetic profile returned by GET /user/profile.
// Lookups degrade to {Email, Name: Email} on any failure, so a profile
// is always available.
type UserProfile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
