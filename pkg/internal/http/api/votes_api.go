package api

import (
	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func castVote(c *fiber.Ctx) error {
	if err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	user := c.Locals("user").(address.Address)

	at, err := parseAddress(c, "address")
	if err != nil {
		return err
	}

	var data struct {
		OptionIndex *uint8 `json:"option_index" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	record, err := ledgerSvc.CastVote(c.UserContext(), user, at, *data.OptionIndex)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func getVoterRecord(c *fiber.Ctx) error {
	at, err := parseAddress(c, "address")
	if err != nil {
		return err
	}
	voter, err := parseAddress(c, "voter")
	if err != nil {
		return err
	}

	record, err := ledgerSvc.GetVoterRecord(c.UserContext(), voter, at)
	if err != nil {
		return exts.LedgerError(c, err)
	}

	return c.JSON(record)
}
