package exts

import (
	"strings"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/auth"
	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware resolves the bearer token, when there is one, into the
// caller identity stored under the "user" local.
func ContextMiddleware(authn auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if len(header) == 0 {
			return c.Next()
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization header must be a bearer token")
		}
		caller, err := authn.Authenticate(strings.TrimSpace(token))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals("user", caller)
		return c.Next()
	}
}

func EnsureAuthenticated(c *fiber.Ctx) error {
	if _, ok := c.Locals("user").(address.Address); !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return nil
}
