package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestTokenClaims_ResolvedEmail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		email    string
		username string
		sub      string
		want     string
	}{
		{
			name:  "email_claim_wins",
			email: "jane@example.com",
			// Username would resolve differently; email takes precedence.
			username: "AzureAD_other@example.com",
			sub:      "sub-1",
			want:     "jane@example.com",
		},
		{
			name:     "federated_username_strips_provider_prefix",
			username: "AzureAD_jane@example.com",
			sub:      "sub-1",
			want:     "jane@example.com",
		},
		{
			name:     "prefix_split_on_first_underscore_only",
			username: "AzureAD_jane_doe@example.com",
			sub:      "sub-1",
			want:     "jane_doe@example.com",
		},
		{
			name:     "native_username_used_verbatim",
			username: "jane@example.com",
			sub:      "sub-1",
			want:     "jane@example.com",
		},
		{
			name: "falls_back_to_subject",
			sub:  "sub-1",
			want: "sub-1",
		},
		{
			name:     "trailing_underscore_yields_empty",
			username: "provider_",
			sub:      "sub-1",
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &TokenClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: tt.sub},
				Email:            tt.email,
				Username:         tt.username,
			}
			assert.Equal(t, tt.want, c.ResolvedEmail())
		})
	}
}
