package api

import (
	"strconv"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

func parseAddress(c *fiber.Ctx, name string) (address.Address, error) {
	out, err := address.Parse(c.Params(name))
	if err != nil {
		return out, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return out, nil
}

func listPolls(c *fiber.Ctx) error {
	var authority *address.Address
	if val := c.Query("authority"); len(val) > 0 {
		parsed, err := address.Parse(val)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		authority = &parsed
	}

	polls, err := ledgerSvc.ListPolls(c.UserContext(), authority)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"count": len(polls),
		"data":  polls,
	})
}

func getPoll(c *fiber.Ctx) error {
	at, err := parseAddress(c, "address")
	if err != nil {
		return err
	}

	poll, err := ledgerSvc.GetPoll(c.UserContext(), at)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	metric := services.GetPollMetric(poll)
	poll.Metric = &metric

	return c.JSON(poll)
}

func getPollMetric(c *fiber.Ctx) error {
	at, err := parseAddress(c, "address")
	if err != nil {
		return err
	}

	poll, err := ledgerSvc.GetPoll(c.UserContext(), at)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	return c.JSON(services.GetPollMetric(poll))
}

func createPoll(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(address.Address)

	var data struct {
		PollID      *uint64             `json:"poll_id" validate:"required"`
		Description string              `json:"description"`
		Options     []models.PollOption `json:"options" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	// Tallies always start from zero, votes sent along are ignored.
	options := lo.Map(data.Options, func(item models.PollOption, _ int) string {
		return item.Description
	})

	poll, err := ledgerSvc.CreatePoll(c.UserContext(), user, *data.PollID, data.Description, options)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(poll)
}

func closePoll(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(address.Address)

	at, err := parseAddress(c, "address")
	if err != nil {
		return err
	}

	poll, err := ledgerSvc.ClosePoll(c.UserContext(), user, at)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	return c.JSON(poll)
}

func derivePollAddress(c *fiber.Ctx) error {
	authority, err := parseAddress(c, "authority")
	if err != nil {
		return err
	}
	pollID, err := strconv.ParseUint(c.Params("pollId"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	at, bump, err := address.PollAddress(ledgerSvc.Program, authority, pollID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(fiber.Map{
		"address": at.String(),
		"bump":    bump,
	})
}
