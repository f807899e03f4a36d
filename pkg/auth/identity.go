package auth

// AuthMethodCognito is the auth_method value recorded on identities
// resolved by this plugin. Downstream hooks use it to recognize their
// own metadata in a multi-plugin auth chain.
const AuthMethodCognito = "cognito"

// AuthenticatedUser is the resolved identity handed back to the gateway
// after successful token validation and permission resolution. It merges
// the token claims (who the caller is) with the TCloud permission data
// (what the caller may touch).
//
// AuthenticatedUser is a plain value; copy it freely.
type AuthenticatedUser struct {
	// Email is the canonical user email derived from the token claims.
	Email string `json:"email"`

	// FullName is the user's display name, when the token carried one.
	FullName string `json:"full_name,omitempty"`

	// CognitoSub is the token's subject, the stable Cognito user id.
	CognitoSub string `json:"cognito_sub"`

	// IsAdmin is always false for identities resolved by this plugin;
	// admin rights are granted through gateway configuration, never
	// derived from a Cognito token.
	IsAdmin bool `json:"is_admin"`

	// IsActive reports whether the user may act. Always true here: an
	// inactive user never gets past token validation.
	IsActive bool `json:"is_active"`

	// Customers lists the customer (cloud) identifiers the user may access.
	Customers []string `json:"customers"`

	// Roles lists the user's roles across those customers.
	Roles []string `json:"roles"`

	// Permissions lists the user's effective permission strings.
	Permissions []string `json:"permissions"`

	// AuthMethod identifies the resolving plugin; see [AuthMethodCognito].
	AuthMethod string `json:"auth_method"`
}

// NewAuthenticatedUser builds an identity from validated claims and the
// resolved permission sets. Nil slices are normalized to empty so the
// serialized forms are always JSON arrays.
func NewAuthenticatedUser(claims *TokenClaims, customers, roles, permissions []string) *AuthenticatedUser {
	return &AuthenticatedUser{
		Email:       claims.ResolvedEmail(),
		FullName:    claims.Name,
		CognitoSub:  claims.Subject,
		IsAdmin:     false,
		IsActive:    true,
		Customers:   normalizeSlice(customers),
		Roles:       normalizeSlice(roles),
		Permissions: normalizeSlice(permissions),
		AuthMethod:  AuthMethodCognito,
	}
}

// GatewayUser returns the user object the gateway's auth chain expects
// from a resolve-identity hook. FullName falls back to the email when
// the token carried no display name.
func (u *AuthenticatedUser) GatewayUser() map[string]any {
	fullName := u.FullName
	if fullName == "" {
		fullName = u.Email
	}
	return map[string]any{
		"email":     u.Email,
		"full_name": fullName,
		"is_admin":  u.IsAdmin,
		"is_active": u.IsActive,
	}
}

// Metadata returns the per-request metadata the gateway stores alongside
// the user. The inject-headers hook reads it back to build propagation
// headers.
func (u *AuthenticatedUser) Metadata() map[string]any {
	return map[string]any{
		"auth_method": u.AuthMethod,
		"cognito_sub": u.CognitoSub,
		"customers":   u.Customers,
		"roles":       u.Roles,
		"permissions": u.Permissions,
	}
}

// normalizeSlice returns an empty slice for nil input and a copy otherwise,
// so the identity never aliases caller-owned backing arrays.
func normalizeSlice(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
