package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	internal "github.com/yatrisafe/tourist-safety/internal"
)

// JWTTokenGenerator signs access tokens with HMAC-SHA256.
type JWTTokenGenerator struct {
	Secret []byte
	TTL    time.Duration
}

func NewJWTTokenGenerator(secret string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTTokenGenerator{
		Secret: []byte(secret),
		TTL:    ttl,
	}
}

// IssueAccessToken creates a signed token carrying the user identity, role and
// session binding.
func (j *JWTTokenGenerator) IssueAccessToken(userID int64, email, role, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.TTL)
	subject := strconv.FormatInt(userID, 10)

	claims := &Claims{
		UserID:    subject,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateToken parses and verifies a token. Expired and malformed tokens fail
// with distinct errors; anything else that does not verify, including a bad
// signature, is ErrInvalidToken.
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, internal.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, internal.ErrTokenMalformed
		default:
			return nil, internal.ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, internal.ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
