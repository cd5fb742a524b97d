package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oriser/regroup"
	"github.com/oriser/tramper/user"
)

var bearerRe = regroup.MustCompile(`^\s*(?i:bearer)\s+(?P<token>\S+)\s*$`)

type bearerHeader struct {
	Token string `regroup:"token,required"`
}

// Claims carried by access tokens. The subject is the user ID.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

type actorKey struct{}

// IssueToken signs an HS256 access token for userID.
func IssueToken(secret []byte, userID string, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken validates tokenString and returns the actor it was issued for.
func ParseToken(secret []byte, tokenString string) (user.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return user.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return user.Actor{}, errors.New("invalid token")
	}
	return user.Actor{ID: claims.Subject, IsAdmin: claims.Admin}, nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := &bearerHeader{}
		if err := bearerRe.MatchToTarget(r.Header.Get("Authorization"), header); err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetails{Kind: "unauthenticated", Message: "missing bearer token"}})
			return
		}

		actor, err := ParseToken(s.jwtSecret, header.Token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetails{Kind: "unauthenticated", Message: "invalid token"}})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFromContext(ctx context.Context) user.Actor {
	actor, _ := ctx.Value(actorKey{}).(user.Actor)
	return actor
}
