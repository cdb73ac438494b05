package admin

import (
	"git.solsynth.dev/hypernet/ballot/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

var ledgerSvc *services.Ledger

func MapControllers(app *fiber.App, baseURL string, ledger *services.Ledger) {
	ledgerSvc = ledger

	admin := app.Group(baseURL)
	{
		admin.Post("/audit", adminTriggerTallyAudit)
	}
}
