// ABOUTME: Signed sign-in state parameter for OAuth authorization requests
// ABOUTME: HS256 JWTs binding a callback to the user, channel and connection

package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// State errors
var (
	ErrInvalidState = errors.New("invalid sign-in state")
	ErrExpiredState = errors.New("sign-in state expired")
)

// StateClaims identify who started a sign-in.
type StateClaims struct {
	User       string `json:"usr"`
	Channel    string `json:"chn"`
	Connection string `json:"con"`
	jwt.RegisteredClaims
}

// StateSigner signs and verifies state parameters.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

// NewStateSigner creates a signer with the given HMAC secret.
func NewStateSigner(secret []byte) *StateSigner {
	return &StateSigner{secret: secret, now: time.Now}
}

// Sign returns a state token for claims valid for expiresIn.
func (s *StateSigner) Sign(claims StateClaims, expiresIn time.Duration) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates tokenString and returns its claims.
func (s *StateSigner) Verify(tokenString string) (*StateClaims, error) {
	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredState
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !token.Valid {
		return nil, ErrInvalidState
	}

	switch {
	case claims.User == "":
		return nil, fmt.Errorf("%w: missing user", ErrInvalidState)
	case claims.Channel == "":
		return nil, fmt.Errorf("%w: missing channel", ErrInvalidState)
	case claims.Connection == "":
		return nil, fmt.Errorf("%w: missing connection", ErrInvalidState)
	}
	return claims, nil
}
