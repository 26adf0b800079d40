package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/TambongStercy/SBC-MS-sub006/config"
	apperrors "github.com/TambongStercy/SBC-MS-sub006/errors"
	"github.com/dgrijalva/jwt-go"
)

type contextKey string

const (
	UserIDContextKey contextKey = "user_id"
	RoleContextKey   contextKey = "role"
	NameContextKey   contextKey = "name"
)

// userClaims is the JWT payload a signed-in user's bearer token
// carries: userId, role and name, per the external interface contract.
type userClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	jwt.StandardClaims
}

// ParseUserToken validates a bearer token against secret and returns
// the claims every handler and the websocket upgrade path need.
func ParseUserToken(secret, tokenString string) (userID, role, name string, err error) {
	claims := &userClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.NewValidationError("unexpected signing method", jwt.ValidationErrorSignatureInvalid)
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "", "", apperrors.Auth("invalid or expired token")
	}
	if claims.UserID == "" {
		return "", "", "", apperrors.Auth("token missing userId claim")
	}
	return claims.UserID, claims.Role, claims.Name, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireAuth validates the caller's user JWT and stores userId, role
// and name in the request context for handlers to read.
func RequireAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteError(w, apperrors.Auth("missing bearer token"))
				return
			}
			userID, role, name, err := ParseUserToken(cfg.JWTSecret, token)
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			ctx = context.WithValue(ctx, RoleContextKey, role)
			ctx = context.WithValue(ctx, NameContextKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps RequireAuth's context requirement with a role
// check, used on the admin tombola/challenge routes.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetRole(r.Context()) != role {
				WriteError(w, apperrors.Forbidden("requires "+role+" role"))
				return
			}
			next.ServeHTTP(w, r.WithContext(r.Context()))
		})
	}
}

// RequireServiceAuth protects webhook routes with a shared bearer
// secret plus the calling service's declared name, independent of the
// end-user JWT scheme above.
func RequireServiceAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			serviceName := r.Header.Get(cfg.ServiceAuthHeader)
			if token == "" || serviceName == "" || token != cfg.ServiceAuthSecret {
				WriteError(w, apperrors.Auth("invalid service credentials"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDContextKey).(string); ok {
		return v
	}
	return ""
}

func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleContextKey).(string); ok {
		return v
	}
	return ""
}

func GetName(ctx context.Context) string {
	if v, ok := ctx.Value(NameContextKey).(string); ok {
		return v
	}
	return ""
}

// WebsocketAuthenticator adapts ParseUserToken to realtime.Authenticator
// so the websocket upgrade path shares the same JWT verification as
// the REST handlers.
type WebsocketAuthenticator struct {
	Secret string
}

func (a WebsocketAuthenticator) Authenticate(token string) (userID, role string, err error) {
	userID, role, _, err = ParseUserToken(a.Secret, token)
	return userID, role, err
}
