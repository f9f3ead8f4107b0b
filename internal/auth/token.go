package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfeidau/planpoker/internal/models"
)

// DefaultIssuer is used when no issuer is configured.
const DefaultIssuer = "planpoker"

// IssueToken creates an HS256 token asserting the given identity.
func IssueToken(secret, issuer string, id models.Identity, ttl time.Duration) (string, error) {
	if issuer == "" {
		issuer = DefaultIssuer
	}

	now := time.Now()
	claims := &Claims{
		Name:   id.DisplayName,
		Avatar: id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
