package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
// Subject is the storefront customer id for customers and an operator
// name for admins.
type AccessTokenPayload struct {
	Subject string
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT accepted by the API.
type AccessTokenClaims struct {
	Role enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// CustomerID returns the storefront customer the token belongs to.
func (c *AccessTokenClaims) CustomerID() string {
	if c == nil || c.Role != enums.ActorRoleCustomer {
		return ""
	}
	return c.Subject
}
