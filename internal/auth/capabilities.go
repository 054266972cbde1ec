package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// Capabilities checked by the HTTP adapter.
const (
	CapabilityManageEntities = "manage_entities"
	CapabilityManageSLA      = "manage_sla"
	CapabilityDeleteTickets  = "delete_tickets"
)

// RequireCapability ensures the caller carries capability.
func RequireCapability(capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromFiber(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !actor.Can(capability) {
			return apperrors.NewForbidden("missing capability " + capability)
		}
		return c.Next()
	}
}

// RequireActor ensures the caller is authenticated.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromFiber(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
