package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/config"
	"github.com/shinyyama/auction-backend/internal/reqctx"
	"google.golang.org/api/option"
)

const (
	AuthModeFirebase = "firebase"
	AuthModeHeader   = "header"

	// HeaderUID carries the caller's uid when AUTH_MODE=header.
	HeaderUID = "X-User-UID"
)

var (
	errNoCredentials = errors.New("unauthorized")
	errInvalidToken  = errors.New("invalid_token")
)

// TokenVerifier resolves a bearer token to a uid.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthMiddleware struct {
	mode     string
	verifier TokenVerifier
}

func NewAuthMiddleware(ctx context.Context, cfg *config.Config) (*AuthMiddleware, error) {
	switch cfg.AuthMode {
	case AuthModeHeader:
		return NewHeaderAuth(), nil
	case AuthModeFirebase, "":
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
	if cfg.FirebaseProjectID == "" {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "FIREBASE_PROJECT_ID is not set")
	}
	var opts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return NewTokenAuth(client), nil
}

func NewTokenAuth(v TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{mode: AuthModeFirebase, verifier: v}
}

// NewHeaderAuth trusts the X-User-UID header. Local development only.
func NewHeaderAuth() *AuthMiddleware {
	return &AuthMiddleware{mode: AuthModeHeader}
}

func (m *AuthMiddleware) Mode() string {
	return m.mode
}

// Client returns the Firebase auth client, or nil in header mode.
func (m *AuthMiddleware) Client() *auth.Client {
	c, _ := m.verifier.(*auth.Client)
	return c
}

// identify returns the caller's uid, errNoCredentials when the request carries none,
// or errInvalidToken when it carries a bad one.
func (m *AuthMiddleware) identify(c echo.Context) (string, error) {
	if m.mode == AuthModeHeader {
		uid := strings.TrimSpace(c.Request().Header.Get(HeaderUID))
		if uid == "" {
			return "", errNoCredentials
		}
		return uid, nil
	}
	authz := c.Request().Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", errNoCredentials
	}
	token, err := m.verifier.VerifyIDToken(c.Request().Context(), strings.TrimPrefix(authz, "Bearer "))
	if err != nil {
		return "", errInvalidToken
	}
	return token.UID, nil
}

func setUID(c echo.Context, uid string) {
	c.Set("uid", uid)
	c.SetRequest(c.Request().WithContext(reqctx.WithUID(c.Request().Context(), uid)))
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, err := m.identify(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"error": map[string]string{"code": err.Error(), "message": "authentication required"},
			})
		}
		setUID(c, uid)
		return next(c)
	}
}

// OptionalAuth sets the uid when valid credentials are present and otherwise continues anonymously.
func (m *AuthMiddleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if uid, err := m.identify(c); err == nil {
			setUID(c, uid)
		}
		return next(c)
	}
}
