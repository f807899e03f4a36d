package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenUseAccess is the token_use value Cognito sets on access tokens.
// Access tokens carry the app client id in the client_id claim instead of
// a standard aud claim, so audience verification is performed manually.
const TokenUseAccess = "access"

// TokenUseID is the token_use value Cognito sets on id tokens.
const TokenUseID = "id"

// TokenClaims is the claim set carried by a Cognito-issued JWT. It embeds
// the registered claims (iss, sub, exp, iat, aud) and adds the
// Cognito-specific claims the plugin needs for identity resolution.
//
// Access tokens populate ClientID and Username; id tokens populate Email
// and Name. Either token type resolves to a stable email via
// [TokenClaims.ResolvedEmail].
type TokenClaims struct {
	jwt.RegisteredClaims

	// TokenUse distinguishes access tokens from id tokens. Cognito sets
	// this to "access" or "id".
	TokenUse string `json:"token_use"`

	// ClientID is the app client id claim present on access tokens.
	ClientID string `json:"client_id,omitempty"`

	// Username is the Cognito username, present on access tokens. For
	// federated identities Cognito prefixes the provider name and an
	// underscore (e.g. "AzureAD_jane.doe@example.com").
	Username string `json:"username,omitempty"`

	// Email is the user's email address, present on id tokens.
	Email string `json:"email,omitempty"`

	// Name is the user's display name, present on id tokens.
	Name string `json:"name,omitempty"`
}

// ResolvedEmail derives the canonical user email from the claim set.
//
// Resolution order:
//  1. the email claim, when present (id tokens)
//  2. the username with a federated provider prefix stripped — everything
//     after the first underscore (access tokens for federated users)
//  3. the raw username (access tokens for native pool users)
//  4. the subject, as a last resort
func (c *TokenClaims) ResolvedEmail() string {
	if c.Email != "" {
		return c.Email
	}
	if c.Username != "" {
		if i := strings.Index(c.Username, "_"); i >= 0 {
			return c.Username[i+1:]
		}
		return c.Username
	}
	return c.Subject
}
