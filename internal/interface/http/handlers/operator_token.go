package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator is the only role admitted to the /admin routes.
const RoleOperator = "operator"

var errNotOperator = errors.New("token does not carry the operator role")

// OperatorClaims are the claims of a signed operator token.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueOperatorToken signs an HS256 operator token for subject.
func IssueOperatorToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parseOperatorToken verifies signature, expiry and role.
func parseOperatorToken(secret []byte, raw string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parse operator token: %w", err)
	}
	if claims.Role != RoleOperator {
		return nil, errNotOperator
	}
	return claims, nil
}
