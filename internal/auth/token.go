// Package auth turns signed access tokens into feed sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	"storyfeed/internal/feed"
)

// Claims carried by a session token. The subject is the user id.
type Claims struct {
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Moderator bool   `json:"moderator,omitempty"`
	jwt.StandardClaims
}

// ParseSessionToken validates an HS256 token and returns the session it
// describes. The returned session is online.
func ParseSessionToken(tokenString string, secret []byte) (feed.Session, error) {
	if len(secret) == 0 {
		return feed.Session{}, errors.New("token secret must not be empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return feed.Session{}, fmt.Errorf("parsing session token: %w", err)
	}
	if !token.Valid {
		return feed.Session{}, errors.New("session token is not valid")
	}
	if claims.Subject == "" {
		return feed.Session{}, errors.New("session token has no subject")
	}

	return feed.Session{
		UserID:      claims.Subject,
		Role:        claims.Role,
		DisplayName: claims.Name,
		Moderator:   claims.Moderator,
		Online:      true,
	}, nil
}

// IssueSessionToken signs a token for session that expires after ttl.
// Used by tests and local tooling; production tokens come from the auth service.
func IssueSessionToken(session feed.Session, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("token secret must not be empty")
	}
	now := time.Now()
	claims := &Claims{
		Role:      session.Role,
		Name:      session.DisplayName,
		Moderator: session.Moderator,
		StandardClaims: jwt.StandardClaims{
			Subject:   session.UserID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}
