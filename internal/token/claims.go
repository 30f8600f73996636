package token

import (
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed payload of an access token. The token is
// self-contained: no server-side record of issued tokens exists, so these
// claims plus the signature are the entire credential.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthContext is the authenticated identity extracted from a valid token.
// It carries everything the downstream pipeline stages need; the credential
// store is never consulted on the request path.
type AuthContext struct {
	Subject  string
	Username string
	Role     policy.Role
}
