// Package ledgertest holds the behaviour every ledger.Store has to show,
// shared by the tests of each backend.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"testing"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Factory func(t *testing.T) ledger.Store

// Identity returns the address of a fresh ed25519 key.
func Identity(t *testing.T) address.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	out, err := address.FromPublicKey(pub)
	require.NoError(t, err)
	return out
}

// Poll builds a poll record at its canonical address.
func Poll(t *testing.T, creator address.Address, pollID uint64, options ...string) models.Poll {
	t.Helper()
	at, bump, err := address.PollAddress(address.DefaultProgram, creator, pollID)
	require.NoError(t, err)
	poll, err := ledger.NewPoll(at, bump, creator, pollID, "test poll", options)
	require.NoError(t, err)
	return poll
}

// Vote builds the voter record of voter on poll.
func Vote(t *testing.T, voter address.Address, poll models.Poll, index uint8) models.VoterRecord {
	t.Helper()
	pollAddr, err := address.Parse(poll.Address)
	require.NoError(t, err)
	at, bump, err := address.VoteAddress(address.DefaultProgram, voter, pollAddr)
	require.NoError(t, err)
	return models.VoterRecord{
		Address:     at.String(),
		Poll:        poll.Address,
		Voter:       voter.String(),
		OptionIndex: index,
		Bump:        bump,
	}
}

func votesOf(poll models.Poll) []uint64 {
	out := make([]uint64, len(poll.Options))
	for i, option := range poll.Options {
		out[i] = option.Votes
	}
	return out
}

func RunStoreSuite(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("create and read poll", func(t *testing.T) {
		store := factory(t)
		creator := Identity(t)
		poll := Poll(t, creator, 1, "Yes", "No")

		require.NoError(t, store.CreatePoll(ctx, poll))

		stored, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, poll.Address, stored.Address)
		assert.Equal(t, models.PollID(1), stored.PollID)
		assert.Equal(t, creator.String(), stored.Authority)
		assert.Equal(t, "test poll", stored.Description)
		assert.True(t, stored.Status)
		assert.Equal(t, poll.Bump, stored.Bump)
		require.Len(t, stored.Options, 2)
		assert.Equal(t, "Yes", stored.Options[0].Description)
		assert.Equal(t, "No", stored.Options[1].Description)
		assert.Equal(t, []uint64{0, 0}, votesOf(stored))
	})

	t.Run("poll address is created once", func(t *testing.T) {
		store := factory(t)
		creator := Identity(t)
		poll := Poll(t, creator, 7, "A", "B")
		require.NoError(t, store.CreatePoll(ctx, poll))

		again := Poll(t, creator, 7, "C")
		again.Description = "overwritten"
		err := store.CreatePoll(ctx, again)
		assert.ErrorIs(t, err, ledger.ErrPollExists)

		stored, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, "test poll", stored.Description)
		assert.Len(t, stored.Options, 2)
	})

	t.Run("missing poll", func(t *testing.T) {
		store := factory(t)
		_, err := store.GetPoll(ctx, Identity(t).String())
		assert.ErrorIs(t, err, ledger.ErrPollNotFound)
	})

	t.Run("vote is recorded with the tally", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "Yes", "No")
		require.NoError(t, store.CreatePoll(ctx, poll))

		voter := Identity(t)
		record := Vote(t, voter, poll, 0)
		require.NoError(t, store.CommitVote(ctx, record))

		stored, err := store.GetVoterRecord(ctx, record.Address)
		require.NoError(t, err)
		assert.Equal(t, poll.Address, stored.Poll)
		assert.Equal(t, voter.String(), stored.Voter)
		assert.Equal(t, uint8(0), stored.OptionIndex)

		updated, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 0}, votesOf(updated))

		count, err := store.CountVoterRecords(ctx, poll.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	})

	t.Run("second vote by the same voter fails", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "Yes", "No")
		require.NoError(t, store.CreatePoll(ctx, poll))

		voter := Identity(t)
		require.NoError(t, store.CommitVote(ctx, Vote(t, voter, poll, 0)))
		err := store.CommitVote(ctx, Vote(t, voter, poll, 1))
		assert.ErrorIs(t, err, ledger.ErrAlreadyVoted)

		updated, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 0}, votesOf(updated))

		record, err := store.GetVoterRecord(ctx, Vote(t, voter, poll, 0).Address)
		require.NoError(t, err)
		assert.Equal(t, uint8(0), record.OptionIndex)
	})

	t.Run("out of range option leaves no trace", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "Yes", "No")
		require.NoError(t, store.CreatePoll(ctx, poll))

		record := Vote(t, Identity(t), poll, 5)
		err := store.CommitVote(ctx, record)
		assert.ErrorIs(t, err, ledger.ErrInvalidOptionIndex)

		_, err = store.GetVoterRecord(ctx, record.Address)
		assert.ErrorIs(t, err, ledger.ErrVoterRecordNotFound)
		updated, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 0}, votesOf(updated))
		count, err := store.CountVoterRecords(ctx, poll.Address)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("vote on missing poll leaves no trace", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "Yes", "No")

		record := Vote(t, Identity(t), poll, 0)
		err := store.CommitVote(ctx, record)
		assert.ErrorIs(t, err, ledger.ErrPollNotFound)

		_, err = store.GetVoterRecord(ctx, record.Address)
		assert.ErrorIs(t, err, ledger.ErrVoterRecordNotFound)
	})

	t.Run("close poll", func(t *testing.T) {
		store := factory(t)
		creator := Identity(t)
		poll := Poll(t, creator, 1, "Yes", "No")
		require.NoError(t, store.CreatePoll(ctx, poll))

		err := store.ClosePoll(ctx, poll.Address, Identity(t).String())
		assert.ErrorIs(t, err, ledger.ErrNotAuthority)

		require.NoError(t, store.ClosePoll(ctx, poll.Address, creator.String()))
		err = store.ClosePoll(ctx, poll.Address, creator.String())
		assert.ErrorIs(t, err, ledger.ErrPollClosed)

		stored, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.False(t, stored.Status)

		record := Vote(t, Identity(t), poll, 0)
		err = store.CommitVote(ctx, record)
		assert.ErrorIs(t, err, ledger.ErrPollClosed)
		_, err = store.GetVoterRecord(ctx, record.Address)
		assert.ErrorIs(t, err, ledger.ErrVoterRecordNotFound)

		err = store.ClosePoll(ctx, Identity(t).String(), creator.String())
		assert.ErrorIs(t, err, ledger.ErrPollNotFound)
	})

	t.Run("tally snapshot", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "Yes", "No")
		require.NoError(t, store.CreatePoll(ctx, poll))
		require.NoError(t, store.CommitVote(ctx, Vote(t, Identity(t), poll, 1)))
		require.NoError(t, store.CommitVote(ctx, Vote(t, Identity(t), poll, 1)))

		snapshot, count, err := store.TallySnapshot(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 2}, votesOf(snapshot))
		assert.EqualValues(t, 2, count)

		_, _, err = store.TallySnapshot(ctx, Identity(t).String())
		assert.ErrorIs(t, err, ledger.ErrPollNotFound)
	})

	t.Run("list polls", func(t *testing.T) {
		store := factory(t)
		alice := Identity(t)
		bob := Identity(t)
		require.NoError(t, store.CreatePoll(ctx, Poll(t, alice, 1, "A")))
		require.NoError(t, store.CreatePoll(ctx, Poll(t, alice, 2, "A")))
		require.NoError(t, store.CreatePoll(ctx, Poll(t, bob, 1, "A")))

		all, err := store.ListPolls(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		owned, err := store.ListPolls(ctx, alice.String())
		require.NoError(t, err)
		assert.Len(t, owned, 2)
		for _, poll := range owned {
			assert.Equal(t, alice.String(), poll.Authority)
		}
	})

	t.Run("concurrent duplicate votes", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "Yes", "No")
		require.NoError(t, store.CreatePoll(ctx, poll))

		voter := Identity(t)
		records := make([]models.VoterRecord, 16)
		for i := range records {
			records[i] = Vote(t, voter, poll, uint8(i%2))
		}

		var accepted, rejected atomic.Int64
		var wg sync.WaitGroup
		for _, record := range records {
			wg.Add(1)
			go func(record models.VoterRecord) {
				defer wg.Done()
				err := store.CommitVote(ctx, record)
				if err == nil {
					accepted.Add(1)
				} else if assert.ErrorIs(t, err, ledger.ErrAlreadyVoted) {
					rejected.Add(1)
				}
			}(record)
		}
		wg.Wait()

		assert.EqualValues(t, 1, accepted.Load())
		assert.EqualValues(t, 15, rejected.Load())

		updated, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.EqualValues(t, 1, ledger.TotalVotes(updated))
	})

	t.Run("concurrent distinct voters keep the tally", func(t *testing.T) {
		store := factory(t)
		poll := Poll(t, Identity(t), 1, "A", "B", "C")
		require.NoError(t, store.CreatePoll(ctx, poll))

		records := make([]models.VoterRecord, 24)
		for i := range records {
			records[i] = Vote(t, Identity(t), poll, uint8(i%3))
		}

		var wg sync.WaitGroup
		for _, record := range records {
			wg.Add(1)
			go func(record models.VoterRecord) {
				defer wg.Done()
				assert.NoError(t, store.CommitVote(ctx, record))
			}(record)
		}
		wg.Wait()

		updated, err := store.GetPoll(ctx, poll.Address)
		require.NoError(t, err)
		assert.Equal(t, []uint64{8, 8, 8}, votesOf(updated))

		count, err := store.CountVoterRecords(ctx, poll.Address)
		require.NoError(t, err)
		assert.EqualValues(t, ledger.TotalVotes(updated), count)
	})
}
