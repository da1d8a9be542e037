package model

// TenantContext carries the per-tenant storage routing credentials resolved
// from the tenant directory. It is resolved per call and cached with a TTL;
// it is never persisted by this service.
type TenantContext struct {
	TenantID         string `json:"tenantId"`
	DatabaseUsername string `json:"databaseUsername"`
	DatabasePassword string `json:"databasePassword"`
}

// Role is a user's role within a tenant, as reported by the identity
// service. Users see only their authorized projects; every other role sees
// all projects.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
	RoleOwner Role = "Owner"
)

// SubscriptionLimits gates project creation for a tenant.
type SubscriptionLimits struct {
	Active      bool `json:"active"`
	MaxProjects int  `json:"maxProjects"`
}
