package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/edps/internal/apperrors"
)

// Claims the client reads from access token payload
// The token is never verified here: the signature is backend business
type Claims struct {
	jwt.RegisteredClaims
	TokenVersion *int `json:"token_version,omitempty"`
}

// DecodeClaims reads the payload segment of the token
// Returns apperrors.ErrInvalidToken if token is malformed or has no 'exp' claim
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: 'exp' claim is missing", apperrors.ErrInvalidToken)
	}

	return claims, nil
}
