package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"pillbot/internal/dose"
)

const issuer = "pillbot"

var errUnauthorized = errors.New("unauthorized")

// IssueToken mints an HS256 bearer token for owner, valid for ttl.
func IssueToken(secret []byte, owner int64, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if !dose.ValidOwner(owner) {
		return "", fmt.Errorf("%w: %d", dose.ErrInvalidOwner, owner)
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(owner, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

// parseToken validates tok and returns the owner in its subject.
func parseToken(secret []byte, tok string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 {
			return 0, fmt.Errorf("%w: token expired or not active yet", errUnauthorized)
		}
		return 0, fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	if !parsed.Valid {
		return 0, fmt.Errorf("%w: token invalid", errUnauthorized)
	}
	if !claims.VerifyIssuer(issuer, true) {
		return 0, fmt.Errorf("%w: wrong issuer", errUnauthorized)
	}
	owner, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || !dose.ValidOwner(owner) {
		return 0, fmt.Errorf("%w: bad subject", errUnauthorized)
	}
	return owner, nil
}

type ctxKey int

const ownerKey ctxKey = iota

// authOwner reads the owner the auth middleware attached. ok is false when
// authentication is disabled.
func authOwner(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ownerKey).(int64)
	return v, ok
}

// requireToken checks the bearer token. With no secret configured every
// request passes unauthenticated; Apply only allows that on loopback.
func requireToken(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			h := r.Header.Get("Authorization")
			scheme, tok, ok := strings.Cut(h, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			owner, err := parseToken(secret, strings.TrimSpace(tok))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
		})
	}
}
