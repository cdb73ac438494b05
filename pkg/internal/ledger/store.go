package ledger

import (
	"context"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
)

// Store is the storage collaborator of the ledger. Implementations must make
// every method a single all-or-nothing step and must serialize steps that
// touch the same record.
type Store interface {
	// CreatePoll creates the poll only if no record occupies its address,
	// otherwise it fails with ErrPollExists.
	CreatePoll(ctx context.Context, poll models.Poll) error
	GetPoll(ctx context.Context, address string) (models.Poll, error)
	// ListPolls lists every poll, or only those of authority when it is set.
	ListPolls(ctx context.Context, authority string) ([]models.Poll, error)

	// CommitVote creates record if its address is free and, in the same
	// step, adds one to the selected option of the referenced poll. It fails
	// with ErrAlreadyVoted, ErrPollNotFound, ErrPollClosed or
	// ErrInvalidOptionIndex and then leaves no trace.
	CommitVote(ctx context.Context, record models.VoterRecord) error
	GetVoterRecord(ctx context.Context, address string) (models.VoterRecord, error)
	CountVoterRecords(ctx context.Context, poll string) (int64, error)
	// TallySnapshot reads the poll together with the number of its voter
	// records, with no vote landing in between.
	TallySnapshot(ctx context.Context, poll string) (models.Poll, int64, error)

	// ClosePoll flips the status of an active poll owned by authority.
	ClosePoll(ctx context.Context, address string, authority string) error
}
