package admin

import (
	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

func ensureOperator(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(address.Address)

	if !lo.Contains(viper.GetStringSlice("admin.operators"), user.String()) {
		return fiber.NewError(fiber.StatusForbidden, "missing permission AdminTriggerTallyAudit")
	}
	return nil
}

func adminTriggerTallyAudit(c *fiber.Ctx) error {
	if err := ensureOperator(c); err != nil {
		return err
	}

	mismatches, err := ledgerSvc.AuditTallies(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"count": len(mismatches),
		"data":  mismatches,
	})
}
