package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/rs/zerolog/log"
)

const defaultCacheTTL = 30 * time.Second

// Ledger runs the poll registry and the vote ledger on top of a Store. It
// keeps no state of its own besides an optional read cache.
type Ledger struct {
	Store   ledger.Store
	Program address.Address

	Cache    *marshaler.Marshaler
	CacheTTL time.Duration

	// generations counts the invalidations of each cached poll. A read only
	// fills the cache when no invalidation happened since it began.
	cacheMu     sync.Mutex
	generations map[string]uint64
}

func NewLedger(source ledger.Store, program address.Address) *Ledger {
	return &Ledger{
		Store:    source,
		Program:  program,
		CacheTTL: defaultCacheTTL,
	}
}

func pollCacheKey(addr string) string {
	return fmt.Sprintf("poll#%s", addr)
}

func (v *Ledger) CreatePoll(ctx context.Context, caller address.Address, pollID uint64, description string, options []string) (models.Poll, error) {
	at, bump, err := address.PollAddress(v.Program, caller, pollID)
	if err != nil {
		return models.Poll{}, fmt.Errorf("unable to derive poll address: %v", err)
	}

	poll, err := ledger.NewPoll(at, bump, caller, pollID, description, options)
	if err != nil {
		return poll, err
	}

	if err := v.Store.CreatePoll(ctx, poll); err != nil {
		return poll, err
	}

	log.Info().
		Str("poll", poll.Address).
		Str("authority", poll.Authority).
		Uint64("poll_id", pollID).
		Int("options", len(poll.Options)).
		Msg("A new poll has been created.")

	return v.Store.GetPoll(ctx, poll.Address)
}

func (v *Ledger) GetPoll(ctx context.Context, at address.Address) (models.Poll, error) {
	if v.Cache == nil {
		return v.Store.GetPoll(ctx, at.String())
	}

	key := pollCacheKey(at.String())
	if cached, err := v.Cache.Get(ctx, key, new(models.Poll)); err == nil {
		return *cached.(*models.Poll), nil
	}

	generation := v.generation(key)
	poll, err := v.Store.GetPoll(ctx, at.String())
	if err != nil {
		return poll, err
	}
	v.fill(ctx, key, generation, poll)
	return poll, nil
}

func (v *Ledger) generation(key string) uint64 {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	return v.generations[key]
}

// fill caches poll unless the key was invalidated after the read started.
func (v *Ledger) fill(ctx context.Context, key string, generation uint64, poll models.Poll) {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()

	if v.generations[key] != generation {
		return
	}
	_ = v.Cache.Set(ctx, key, poll, store.WithExpiration(v.CacheTTL), store.WithSynchronousSet())
}

func (v *Ledger) ListPolls(ctx context.Context, authority *address.Address) ([]models.Poll, error) {
	filter := ""
	if authority != nil {
		filter = authority.String()
	}
	return v.Store.ListPolls(ctx, filter)
}

// CastVote records the vote of caller. The store creates the voter record
// and bumps the tally in one step; a second vote finds the record address
// taken and fails as a whole.
func (v *Ledger) CastVote(ctx context.Context, caller address.Address, pollAddress address.Address, optionIndex uint8) (models.VoterRecord, error) {
	// Options never change after creation, so a cached copy is good enough
	// to reject an index early. The store still checks every guard.
	poll, err := v.GetPoll(ctx, pollAddress)
	if err != nil {
		return models.VoterRecord{}, err
	}
	if err := ledger.CheckOptionIndex(poll, optionIndex); err != nil {
		return models.VoterRecord{}, err
	}

	at, bump, err := address.VoteAddress(v.Program, caller, pollAddress)
	if err != nil {
		return models.VoterRecord{}, fmt.Errorf("unable to derive voter record address: %v", err)
	}

	record := models.VoterRecord{
		Address:     at.String(),
		Poll:        pollAddress.String(),
		Voter:       caller.String(),
		OptionIndex: optionIndex,
		Bump:        bump,
	}
	if err := v.Store.CommitVote(ctx, record); err != nil {
		return record, err
	}
	v.invalidate(ctx, pollAddress)

	log.Debug().
		Str("poll", record.Poll).
		Str("voter", record.Voter).
		Uint8("option", optionIndex).
		Msg("A vote has been recorded.")

	return v.Store.GetVoterRecord(ctx, record.Address)
}

// ClosePoll stops a poll from accepting votes. Only the authority can close
// it, and the poll must sit at the address derived from the caller.
func (v *Ledger) ClosePoll(ctx context.Context, caller address.Address, pollAddress address.Address) (models.Poll, error) {
	poll, err := v.Store.GetPoll(ctx, pollAddress.String())
	if err != nil {
		return poll, err
	}
	if poll.Authority != caller.String() {
		return poll, ledger.ErrNotAuthority
	}
	if !address.VerifyPollAddress(v.Program, pollAddress, caller, uint64(poll.PollID)) {
		return poll, ledger.ErrNotAuthority
	}

	if err := v.Store.ClosePoll(ctx, poll.Address, poll.Authority); err != nil {
		return poll, err
	}
	v.invalidate(ctx, pollAddress)

	log.Info().Str("poll", poll.Address).Msg("A poll has been closed.")

	return v.Store.GetPoll(ctx, poll.Address)
}

func (v *Ledger) GetVoterRecord(ctx context.Context, voter address.Address, pollAddress address.Address) (models.VoterRecord, error) {
	at, _, err := address.VoteAddress(v.Program, voter, pollAddress)
	if err != nil {
		return models.VoterRecord{}, fmt.Errorf("unable to derive voter record address: %v", err)
	}
	return v.Store.GetVoterRecord(ctx, at.String())
}

func (v *Ledger) invalidate(ctx context.Context, at address.Address) {
	if v.Cache == nil {
		return
	}

	key := pollCacheKey(at.String())
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()

	if v.generations == nil {
		v.generations = make(map[string]uint64)
	}
	v.generations[key]++
	if err := v.Cache.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("poll", at.String()).Msg("An error occurred when invalidating poll cache...")
	}
}

func GetPollMetric(poll models.Poll) models.PollMetric {
	total := ledger.TotalVotes(poll)

	byOptions := make(map[int]uint64, len(poll.Options))
	byOptionsPercentage := make(map[int]float64, len(poll.Options))
	for idx, option := range poll.Options {
		byOptions[idx] = option.Votes
		if total > 0 {
			byOptionsPercentage[idx] = float64(option.Votes) / float64(total)
		} else {
			byOptionsPercentage[idx] = 0
		}
	}

	return models.PollMetric{
		TotalVotes:          total,
		ByOptions:           byOptions,
		ByOptionsPercentage: byOptionsPercentage,
	}
}
