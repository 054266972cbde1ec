package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/domain"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

const actorLocalsKey = "auth_actor"

// ActorMiddleware validates bearer tokens and attaches the caller to the request.
type ActorMiddleware struct {
	tokens *TokenManager
}

// NewActorMiddleware constructs middleware.
func NewActorMiddleware(tokens *TokenManager) *ActorMiddleware {
	return &ActorMiddleware{tokens: tokens}
}

// Handle enforces a valid bearer token for protected routes.
func (m *ActorMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	actor := claims.Actor()
	c.Locals(actorLocalsKey, actor)
	c.SetUserContext(WithActor(c.UserContext(), actor))
	return c.Next()
}

// ActorFromFiber retrieves the authenticated caller.
func ActorFromFiber(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorLocalsKey).(domain.Actor)
	return actor, ok
}
