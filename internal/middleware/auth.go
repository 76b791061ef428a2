package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	users    repository.UserRepository
}

// NewFirebaseVerifier builds the Firebase Auth client used to verify ID tokens.
func NewFirebaseVerifier(ctx context.Context, projectID string, opts ...option.ClientOption) (*auth.Client, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, err
	}
	return app.Auth(ctx)
}

func NewAuthMiddleware(verifier TokenVerifier, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, users: users}
}

// RequireAuth verifies the bearer token (or ?token= for websocket upgrades) and
// sets uid, email and role on the context.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "missing bearer token"))
		}
		token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody("invalid_token", "token verification failed"))
		}
		if err := m.identify(c, token); err != nil {
			return c.JSON(http.StatusInternalServerError, errorBody("internal_error", "failed to load user"))
		}
		return next(c)
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise continues anonymously.
func (m *AuthMiddleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if tokenStr := bearerToken(c); tokenStr != "" {
			if token, err := m.verifier.VerifyIDToken(c.Request().Context(), tokenStr); err == nil {
				_ = m.identify(c, token)
			}
		}
		return next(c)
	}
}

func (m *AuthMiddleware) identify(c echo.Context, token *auth.Token) error {
	c.Set("uid", token.UID)
	if email, ok := token.Claims["email"].(string); ok {
		c.Set("email", email)
	}
	role := model.RoleBuyer
	if m.users != nil {
		u, err := m.users.FindByUID(c.Request().Context(), token.UID)
		switch {
		case err == nil:
			role = u.Role
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}
	c.Set("role", role)
	return nil
}

func bearerToken(c echo.Context) string {
	authz := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return c.QueryParam("token")
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": message}}
}
