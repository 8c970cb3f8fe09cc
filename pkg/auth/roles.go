// Package auth implements the control plane's admission and authorization
// checks: signature admission, API-key admission with
// per-tier rate limiting, JWT admission via a JWKS-validated DynamicClaims
// token, a transitive role hierarchy, and a project-scoped resource access
// matrix.
package auth

// Role is a JWT-carried permission tier.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleDeveloper Role = "developer"
	RoleUser Role = "user"
)

// rank orders roles from most to least privileged; admin > developer > user.
var rank = map[Role]int{
	RoleAdmin: 3,
	RoleDeveloper: 2,
	RoleUser: 1,
}

// HasRole reports whether held satisfies required, transitively: a higher
// role always satisfies a lower requirement.
func HasRole(held, required Role) bool {
	return rank[held] >= rank[required]
}
