package services_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/cache"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger/ledgertest"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger() *services.Ledger {
	return services.NewLedger(ledger.NewMemoryStore(), address.DefaultProgram)
}

func mustParse(t *testing.T, in string) address.Address {
	t.Helper()
	out, err := address.Parse(in)
	require.NoError(t, err)
	return out
}

func tally(poll models.Poll) []uint64 {
	out := make([]uint64, len(poll.Options))
	for i, option := range poll.Options {
		out[i] = option.Votes
	}
	return out
}

func TestVotingScenarios(t *testing.T) {
	ctx := context.Background()
	svc := newLedger()
	creator := ledgertest.Identity(t)
	x := ledgertest.Identity(t)
	y := ledgertest.Identity(t)

	// A: a fresh poll starts active with an empty tally.
	poll, err := svc.CreatePoll(ctx, creator, 1, "Ship it?", []string{"Yes", "No"})
	require.NoError(t, err)
	assert.True(t, poll.Status)
	assert.Equal(t, "Yes", poll.Options[0].Description)
	assert.Equal(t, "No", poll.Options[1].Description)
	assert.Equal(t, []uint64{0, 0}, tally(poll))

	expected, _, err := address.PollAddress(address.DefaultProgram, creator, 1)
	require.NoError(t, err)
	assert.Equal(t, expected.String(), poll.Address)
	at := mustParse(t, poll.Address)

	// B: first vote of X is recorded.
	record, err := svc.CastVote(ctx, x, at, 0)
	require.NoError(t, err)
	assert.Equal(t, x.String(), record.Voter)
	assert.Equal(t, poll.Address, record.Poll)
	assert.Equal(t, uint8(0), record.OptionIndex)

	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, tally(poll))

	// C: X cannot vote again, whatever the option.
	for _, index := range []uint8{0, 1} {
		_, err = svc.CastVote(ctx, x, at, index)
		assert.ErrorIs(t, err, ledger.ErrAlreadyVoted)
		assert.Equal(t, ledger.KindCollision, ledger.KindOf(err))
	}
	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, tally(poll))

	// D: an option out of range is rejected without a record.
	_, err = svc.CastVote(ctx, y, at, 5)
	assert.ErrorIs(t, err, ledger.ErrInvalidOptionIndex)
	_, err = svc.GetVoterRecord(ctx, y, at)
	assert.ErrorIs(t, err, ledger.ErrVoterRecordNotFound)
	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, tally(poll))

	// E: the same poll id cannot be reused by its creator.
	_, err = svc.CreatePoll(ctx, creator, 1, "Replaced", []string{"Maybe"})
	assert.ErrorIs(t, err, ledger.ErrPollExists)
	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "Ship it?", poll.Description)
	assert.Len(t, poll.Options, 2)
	assert.Equal(t, []uint64{1, 0}, tally(poll))
}

func TestCreatePollValidationTouchesNothing(t *testing.T) {
	ctx := context.Background()
	svc := newLedger()
	creator := ledgertest.Identity(t)

	_, err := svc.CreatePoll(ctx, creator, 3, "q", nil)
	assert.ErrorIs(t, err, ledger.ErrNoOptions)

	polls, err := svc.ListPolls(ctx, &creator)
	require.NoError(t, err)
	assert.Empty(t, polls)

	// The id is still free after a rejected attempt.
	_, err = svc.CreatePoll(ctx, creator, 3, "q", []string{"a"})
	assert.NoError(t, err)
}

func TestSamePollIDAcrossCreators(t *testing.T) {
	ctx := context.Background()
	svc := newLedger()
	alice := ledgertest.Identity(t)
	bob := ledgertest.Identity(t)
	voter := ledgertest.Identity(t)

	first, err := svc.CreatePoll(ctx, alice, 0, "a", []string{"x"})
	require.NoError(t, err)
	second, err := svc.CreatePoll(ctx, bob, 0, "b", []string{"x"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, second.Address)

	// Records hang off the poll address, so one voter can take part in both.
	_, err = svc.CastVote(ctx, voter, mustParse(t, first.Address), 0)
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, voter, mustParse(t, second.Address), 0)
	require.NoError(t, err)
}

func TestCastVoteOnMissingPoll(t *testing.T) {
	svc := newLedger()
	_, err := svc.CastVote(context.Background(), ledgertest.Identity(t), ledgertest.Identity(t), 0)
	assert.ErrorIs(t, err, ledger.ErrPollNotFound)
	assert.Equal(t, ledger.KindPrecondition, ledger.KindOf(err))
}

func TestClosePoll(t *testing.T) {
	ctx := context.Background()
	svc := newLedger()
	creator := ledgertest.Identity(t)
	voter := ledgertest.Identity(t)

	poll, err := svc.CreatePoll(ctx, creator, 9, "q", []string{"a", "b"})
	require.NoError(t, err)
	at := mustParse(t, poll.Address)

	_, err = svc.CastVote(ctx, voter, at, 1)
	require.NoError(t, err)

	_, err = svc.ClosePoll(ctx, voter, at)
	assert.ErrorIs(t, err, ledger.ErrNotAuthority)

	closed, err := svc.ClosePoll(ctx, creator, at)
	require.NoError(t, err)
	assert.False(t, closed.Status)
	assert.Equal(t, []uint64{0, 1}, tally(closed))

	_, err = svc.ClosePoll(ctx, creator, at)
	assert.ErrorIs(t, err, ledger.ErrPollClosed)

	_, err = svc.CastVote(ctx, ledgertest.Identity(t), at, 0)
	assert.ErrorIs(t, err, ledger.ErrPollClosed)

	_, err = svc.ClosePoll(ctx, creator, ledgertest.Identity(t))
	assert.ErrorIs(t, err, ledger.ErrPollNotFound)
}

func TestConcurrentVotesKeepTally(t *testing.T) {
	ctx := context.Background()
	svc := newLedger()
	poll, err := svc.CreatePoll(ctx, ledgertest.Identity(t), 1, "q", []string{"a", "b"})
	require.NoError(t, err)
	at := mustParse(t, poll.Address)

	voters := make([]address.Address, 20)
	for i := range voters {
		voters[i] = ledgertest.Identity(t)
	}

	var wg sync.WaitGroup
	for i, voter := range voters {
		// Every voter tries twice, only one attempt may land.
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(voter address.Address, index uint8) {
				defer wg.Done()
				_, _ = svc.CastVote(ctx, voter, at, index)
			}(voter, uint8((i+attempt)%2))
		}
	}
	wg.Wait()

	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.EqualValues(t, len(voters), ledger.TotalVotes(poll))

	mismatches, err := svc.AuditTallies(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestGetPollMetric(t *testing.T) {
	poll := ledgertest.Poll(t, ledgertest.Identity(t), 1, "a", "b", "c")
	empty := services.GetPollMetric(poll)
	assert.Zero(t, empty.TotalVotes)
	assert.Equal(t, 0.0, empty.ByOptionsPercentage[0])

	poll.Options[0].Votes = 3
	poll.Options[2].Votes = 1
	metric := services.GetPollMetric(poll)
	assert.EqualValues(t, 4, metric.TotalVotes)
	assert.EqualValues(t, 3, metric.ByOptions[0])
	assert.EqualValues(t, 0, metric.ByOptions[1])
	assert.InDelta(t, 0.75, metric.ByOptionsPercentage[0], 1e-9)
	assert.InDelta(t, 0.25, metric.ByOptionsPercentage[2], 1e-9)
}

// skewedStore reports one voter record more than it has.
type skewedStore struct {
	ledger.Store
}

func (s skewedStore) TallySnapshot(ctx context.Context, poll string) (models.Poll, int64, error) {
	out, count, err := s.Store.TallySnapshot(ctx, poll)
	return out, count + 1, err
}

func TestAuditTalliesReportsMismatch(t *testing.T) {
	ctx := context.Background()
	svc := services.NewLedger(skewedStore{ledger.NewMemoryStore()}, address.DefaultProgram)

	poll, err := svc.CreatePoll(ctx, ledgertest.Identity(t), 1, "q", []string{"a"})
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, ledgertest.Identity(t), mustParse(t, poll.Address), 0)
	require.NoError(t, err)

	mismatches, err := svc.AuditTallies(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, poll.Address, mismatches[0].Poll)
	assert.EqualValues(t, 1, mismatches[0].Votes)
	assert.EqualValues(t, 2, mismatches[0].Records)
}

// votingStore casts one more vote right after the polls are listed.
type votingStore struct {
	ledger.Store
	t     *testing.T
	voted atomic.Bool
}

func (s *votingStore) ListPolls(ctx context.Context, authority string) ([]models.Poll, error) {
	polls, err := s.Store.ListPolls(ctx, authority)
	if err == nil && len(polls) > 0 && s.voted.CompareAndSwap(false, true) {
		require.NoError(s.t, s.Store.CommitVote(ctx, ledgertest.Vote(s.t, ledgertest.Identity(s.t), polls[0], 0)))
	}
	return polls, err
}

func TestAuditTalliesIgnoresVotesDuringWalk(t *testing.T) {
	ctx := context.Background()
	svc := services.NewLedger(&votingStore{Store: ledger.NewMemoryStore(), t: t}, address.DefaultProgram)

	_, err := svc.CreatePoll(ctx, ledgertest.Identity(t), 1, "q", []string{"a", "b"})
	require.NoError(t, err)

	mismatches, err := svc.AuditTallies(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

// countingStore counts the poll reads that reach the store. When armed, the
// next read stalls after it has fetched the poll until release is closed.
type countingStore struct {
	ledger.Store
	reads   atomic.Int64
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{
		Store:   ledger.NewMemoryStore(),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *countingStore) GetPoll(ctx context.Context, address string) (models.Poll, error) {
	s.reads.Add(1)
	poll, err := s.Store.GetPoll(ctx, address)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return poll, err
}

func newCachedLedger(t *testing.T, source ledger.Store) *services.Ledger {
	t.Helper()
	require.NoError(t, cache.NewStore())
	svc := services.NewLedger(source, address.DefaultProgram)
	svc.Cache = cache.NewMarshaler()
	require.NotNil(t, svc.Cache)
	return svc
}

func TestCachedPollFollowsMutations(t *testing.T) {
	ctx := context.Background()
	source := newCountingStore()
	svc := newCachedLedger(t, source)
	creator := ledgertest.Identity(t)

	poll, err := svc.CreatePoll(ctx, creator, 1, "q", []string{"a", "b"})
	require.NoError(t, err)
	at := mustParse(t, poll.Address)

	_, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	before := source.reads.Load()
	_, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, before, source.reads.Load(), "second read should come from the cache")

	// The index check runs against the cached poll.
	_, err = svc.CastVote(ctx, ledgertest.Identity(t), at, 5)
	assert.ErrorIs(t, err, ledger.ErrInvalidOptionIndex)
	assert.Equal(t, before, source.reads.Load())

	_, err = svc.CastVote(ctx, ledgertest.Identity(t), at, 0)
	require.NoError(t, err)
	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, tally(poll))

	_, err = svc.ClosePoll(ctx, creator, at)
	require.NoError(t, err)
	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.False(t, poll.Status)

	_, err = svc.CastVote(ctx, ledgertest.Identity(t), at, 1)
	assert.ErrorIs(t, err, ledger.ErrPollClosed)
}

func TestCachedPollIgnoresReadsOlderThanVote(t *testing.T) {
	ctx := context.Background()
	source := newCountingStore()
	svc := newCachedLedger(t, source)

	poll, err := svc.CreatePoll(ctx, ledgertest.Identity(t), 1, "q", []string{"a", "b"})
	require.NoError(t, err)
	at := mustParse(t, poll.Address)

	// A reader fetches the poll and stalls before it fills the cache.
	source.armed.Store(true)
	done := make(chan models.Poll)
	go func() {
		stale, err := svc.GetPoll(ctx, at)
		assert.NoError(t, err)
		done <- stale
	}()
	<-source.read

	_, err = svc.CastVote(ctx, ledgertest.Identity(t), at, 0)
	require.NoError(t, err)

	close(source.release)
	stale := <-done
	assert.Equal(t, []uint64{0, 0}, tally(stale))

	fresh, err := svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, tally(fresh))
}

func TestCastVoteChecksIndexBeforeRecord(t *testing.T) {
	ctx := context.Background()
	svc := newLedger()
	voter := ledgertest.Identity(t)

	poll, err := svc.CreatePoll(ctx, ledgertest.Identity(t), 1, "q", []string{"a", "b"})
	require.NoError(t, err)
	at := mustParse(t, poll.Address)
	_, err = svc.CastVote(ctx, voter, at, 0)
	require.NoError(t, err)

	// The service rejects the index before the store sees the taken record.
	_, err = svc.CastVote(ctx, voter, at, 5)
	assert.ErrorIs(t, err, ledger.ErrInvalidOptionIndex)
	_, err = svc.CastVote(ctx, voter, at, 1)
	assert.ErrorIs(t, err, ledger.ErrAlreadyVoted)

	poll, err = svc.GetPoll(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, tally(poll))
}
