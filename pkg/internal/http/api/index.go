package api

import (
	"git.solsynth.dev/hypernet/ballot/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

var ledgerSvc *services.Ledger

func MapAPIs(app *fiber.App, baseURL string, ledger *services.Ledger) {
	ledgerSvc = ledger

	api := app.Group(baseURL).Name("API")
	{
		polls := api.Group("/polls").Name("Polls API")
		{
			polls.Get("/", listPolls)
			polls.Post("/", createPoll)
			polls.Get("/:address", getPoll)
			polls.Get("/:address/metric", getPollMetric)
			polls.Post("/:address/close", closePoll)
			polls.Post("/:address/votes", castVote)
			polls.Get("/:address/votes/:voter", getVoterRecord)
		}

		addresses := api.Group("/addresses").Name("Address API")
		{
			addresses.Get("/polls/:authority/:pollId", derivePollAddress)
		}
	}
}
