package exts

import (
	"errors"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func StatusOf(err error) int {
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return fiber.StatusBadRequest
	case ledger.KindCollision:
		return fiber.StatusConflict
	case ledger.KindPrecondition:
		if errors.Is(err, ledger.ErrPollNotFound) {
			return fiber.StatusNotFound
		}
		return fiber.StatusConflict
	case ledger.KindUnauthorized:
		return fiber.StatusForbidden
	case ledger.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// LedgerError turns an error of the ledger into a response error, the code
// goes out in the X-Error-Code header.
func LedgerError(c *fiber.Ctx, err error) error {
	if code := ledger.CodeOf(err); code != "" {
		c.Set("X-Error-Code", code)
	}
	status := StatusOf(err)
	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("An error occurred when handling request...")
	}
	return fiber.NewError(status, err.Error())
}
