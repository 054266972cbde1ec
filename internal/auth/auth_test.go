package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-engine", time.Minute)
	actor := domain.Actor{ID: "agent-1", Name: "Dana", Email: "dana@example.com", Type: domain.ActorTypeAgent, Capabilities: []string{CapabilityManageSLA}}

	token, expiresAt, err := tm.GenerateToken(actor)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())
}

func TestParseTokenRejectsOtherIssuerAndSecret(t *testing.T) {
	issued, _, err := NewTokenManager("secret", "other", time.Minute).GenerateToken(domain.Actor{ID: "a"})
	require.NoError(t, err)

	_, err = NewTokenManager("secret", "ticket-engine", time.Minute).ParseToken(issued)
	assert.Error(t, err)

	_, err = NewTokenManager("different", "", time.Minute).ParseToken(issued)
	assert.Error(t, err)
}

func TestActorFromContextDefaultsToSystem(t *testing.T) {
	assert.Equal(t, domain.SystemActor, ActorFromContext(context.Background()))

	ctx := WithActor(context.Background(), domain.Actor{ID: "x"})
	assert.Equal(t, "x", ActorFromContext(ctx).ID)
}

func newTestApp(tm *TokenManager, capability string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	mw := NewActorMiddleware(tm)
	app.Get("/secure", mw.Handle, RequireCapability(capability), func(c *fiber.Ctx) error {
		return c.SendString(ActorFromContext(c.UserContext()).ID)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Minute)
	app := newTestApp(tm, CapabilityManageEntities)

	allowed, _, err := tm.GenerateToken(domain.Actor{ID: "admin", Capabilities: []string{CapabilityManageEntities}})
	require.NoError(t, err)
	denied, _, err := tm.GenerateToken(domain.Actor{ID: "agent"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: fiber.StatusUnauthorized},
		{name: "malformed header", header: "Token abc", status: fiber.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: fiber.StatusUnauthorized},
		{name: "missing capability", header: "Bearer " + denied, status: fiber.StatusForbidden},
		{name: "allowed", header: "Bearer " + allowed, status: fiber.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/secure", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
