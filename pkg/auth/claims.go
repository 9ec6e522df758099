package auth

import (
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UID  string
	Role enums.BuyerRole
	JTI  string
}

// AccessTokenClaims represents the typed JWT issued to buyers.
type AccessTokenClaims struct {
	UID  string          `json:"uid"`
	Role enums.BuyerRole `json:"role"`
	jwt.RegisteredClaims
}
