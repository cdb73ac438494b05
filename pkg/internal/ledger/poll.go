package ledger

import (
	"slices"
	"strings"
	"unicode/utf8"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"github.com/samber/lo"
)

// NewPoll is the only way a poll record should come into being. It enforces
// the capacity of every bounded field and starts each counter at zero.
func NewPoll(at address.Address, bump uint8, authority address.Address, pollID uint64, description string, options []string) (models.Poll, error) {
	if len(description) > models.MaxPollDescription {
		return models.Poll{}, ErrPollDescriptionTooLong
	}
	if len(options) == 0 {
		return models.Poll{}, ErrNoOptions
	}
	if len(options) > models.MaxOptions {
		return models.Poll{}, ErrTooManyOptions
	}
	for _, option := range options {
		if len(option) > models.MaxOptionDescription {
			return models.Poll{}, ErrOptionDescriptionTooLong
		}
	}
	if !wellFormed(description) || !lo.EveryBy(options, wellFormed) {
		return models.Poll{}, ErrMalformedText
	}

	return models.Poll{
		Address:     at.String(),
		PollID:      models.PollID(pollID),
		Authority:   authority.String(),
		Description: description,
		Options: lo.Map(options, func(item string, index int) models.PollOption {
			return models.PollOption{Description: item}
		}),
		Status: true,
		Bump:   bump,
	}, nil
}

// wellFormed rejects what postgres cannot keep in text or jsonb.
func wellFormed(text string) bool {
	return utf8.ValidString(text) && !strings.ContainsRune(text, 0)
}

// CheckOptionIndex reports whether index selects an option of poll.
func CheckOptionIndex(poll models.Poll, index uint8) error {
	if int(index) >= len(poll.Options) {
		return ErrInvalidOptionIndex
	}
	return nil
}

// TotalVotes sums the embedded tally of poll.
func TotalVotes(poll models.Poll) uint64 {
	return lo.SumBy(poll.Options, func(item models.PollOption) uint64 {
		return item.Votes
	})
}

// ClonePoll copies poll including its option slice.
func ClonePoll(poll models.Poll) models.Poll {
	out := poll
	out.Options = slices.Clone(poll.Options)
	out.Metric = nil
	return out
}
