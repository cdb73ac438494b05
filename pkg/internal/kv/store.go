package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var _ ledger.Store = (*Store)(nil)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store keeps every record in a redis hash. Each mutation is a Lua script,
// so redis runs it as one step. All keys of a poll must live on the same
// node.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Store) pollKey(address string) string {
	return s.prefix + "poll:" + address
}

func (s *Store) votersKey(poll string) string {
	return s.prefix + "poll:" + poll + ":voters"
}

func (s *Store) recordKey(address string) string {
	return s.prefix + "vote:" + address
}

func (s *Store) pollsKey(authority string) string {
	if authority == "" {
		return s.prefix + "polls"
	}
	return s.prefix + "polls:" + authority
}

type pollHash struct {
	Address     string `mapstructure:"address"`
	PollID      uint64 `mapstructure:"poll_id"`
	Authority   string `mapstructure:"authority"`
	Description string `mapstructure:"description"`
	Options     string `mapstructure:"options"`
	OptionCount int    `mapstructure:"option_count"`
	Status      bool   `mapstructure:"status"`
	Bump        uint8  `mapstructure:"bump"`
	CreatedAt   int64  `mapstructure:"created_at"`
	UpdatedAt   int64  `mapstructure:"updated_at"`
}

type recordHash struct {
	Address     string `mapstructure:"address"`
	Poll        string `mapstructure:"poll"`
	Voter       string `mapstructure:"voter"`
	OptionIndex uint8  `mapstructure:"option_index"`
	Bump        uint8  `mapstructure:"bump"`
	CreatedAt   int64  `mapstructure:"created_at"`
}

func decode(data map[string]string, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(data)
}

func (s *Store) CreatePoll(ctx context.Context, poll models.Poll) error {
	descriptions := lo.Map(poll.Options, func(item models.PollOption, _ int) string {
		return item.Description
	})
	options, err := json.Marshal(descriptions)
	if err != nil {
		return fmt.Errorf("unable to encode poll options: %v", err)
	}

	at := s.now().UnixNano()
	args := []any{
		poll.Address,
		"address", poll.Address,
		"poll_id", strconv.FormatUint(uint64(poll.PollID), 10),
		"authority", poll.Authority,
		"description", poll.Description,
		"options", string(options),
		"option_count", len(poll.Options),
		"status", lo.Ternary(poll.Status, "1", "0"),
		"bump", int(poll.Bump),
		"created_at", at,
		"updated_at", at,
	}
	for idx := range poll.Options {
		args = append(args, fmt.Sprintf("votes:%d", idx), 0)
	}

	keys := []string{s.pollKey(poll.Address), s.pollsKey(""), s.pollsKey(poll.Authority)}
	result, err := createPollScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return logError("create poll", err, poll.Address)
	}
	if result == resultOccupied {
		return ledger.ErrPollExists
	}
	return nil
}

func (s *Store) GetPoll(ctx context.Context, address string) (models.Poll, error) {
	data, err := s.rdb.HGetAll(ctx, s.pollKey(address)).Result()
	if err != nil {
		return models.Poll{}, logError("get poll", err, address)
	}
	if len(data) == 0 {
		return models.Poll{}, ledger.ErrPollNotFound
	}
	return parsePoll(data)
}

func parsePoll(data map[string]string) (models.Poll, error) {
	var hash pollHash
	if err := decode(data, &hash); err != nil {
		return models.Poll{}, fmt.Errorf("unable to decode poll: %v", err)
	}

	var descriptions []string
	if err := json.Unmarshal([]byte(hash.Options), &descriptions); err != nil {
		return models.Poll{}, fmt.Errorf("unable to decode poll options: %v", err)
	}
	if len(descriptions) != hash.OptionCount {
		return models.Poll{}, fmt.Errorf("poll %s carries %d options but counts %d", hash.Address, len(descriptions), hash.OptionCount)
	}

	options := make([]models.PollOption, len(descriptions))
	for idx, description := range descriptions {
		votes, err := strconv.ParseUint(data[fmt.Sprintf("votes:%d", idx)], 10, 64)
		if err != nil {
			return models.Poll{}, fmt.Errorf("unable to decode tally of option %d: %v", idx, err)
		}
		options[idx] = models.PollOption{Description: description, Votes: votes}
	}

	return models.Poll{
		Address:     hash.Address,
		PollID:      models.PollID(hash.PollID),
		Authority:   hash.Authority,
		Description: hash.Description,
		Options:     options,
		Status:      hash.Status,
		Bump:        hash.Bump,
		CreatedAt:   time.Unix(0, hash.CreatedAt),
		UpdatedAt:   time.Unix(0, hash.UpdatedAt),
	}, nil
}

func (s *Store) ListPolls(ctx context.Context, authority string) ([]models.Poll, error) {
	addresses, err := s.rdb.SMembers(ctx, s.pollsKey(authority)).Result()
	if err != nil {
		return nil, logError("list polls", err, authority)
	}
	if len(addresses) == 0 {
		return []models.Poll{}, nil
	}
	sort.Strings(addresses)

	cmds, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, address := range addresses {
			pipe.HGetAll(ctx, s.pollKey(address))
		}
		return nil
	})
	if err != nil {
		return nil, logError("list polls", err, authority)
	}

	polls := make([]models.Poll, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil || len(data) == 0 {
			continue
		}
		poll, err := parsePoll(data)
		if err != nil {
			log.Warn().Err(err).Msg("Skipped a poll that cannot be decoded...")
			continue
		}
		polls = append(polls, poll)
	}
	return polls, nil
}

func (s *Store) CommitVote(ctx context.Context, record models.VoterRecord) error {
	keys := []string{s.recordKey(record.Address), s.pollKey(record.Poll), s.votersKey(record.Poll)}
	args := []any{
		int(record.OptionIndex),
		record.Address,
		record.Poll,
		record.Voter,
		int(record.Bump),
		s.now().UnixNano(),
	}

	result, err := commitVoteScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return logError("commit vote", err, record.Address)
	}
	switch result {
	case resultApplied:
		return nil
	case resultOccupied:
		return ledger.ErrAlreadyVoted
	case resultNotFound:
		return ledger.ErrPollNotFound
	case resultClosed:
		return ledger.ErrPollClosed
	case resultBadIndex:
		return ledger.ErrInvalidOptionIndex
	default:
		return fmt.Errorf("unexpected vote script result %d", result)
	}
}

func (s *Store) GetVoterRecord(ctx context.Context, address string) (models.VoterRecord, error) {
	data, err := s.rdb.HGetAll(ctx, s.recordKey(address)).Result()
	if err != nil {
		return models.VoterRecord{}, logError("get voter record", err, address)
	}
	if len(data) == 0 {
		return models.VoterRecord{}, ledger.ErrVoterRecordNotFound
	}

	var hash recordHash
	if err := decode(data, &hash); err != nil {
		return models.VoterRecord{}, fmt.Errorf("unable to decode voter record: %v", err)
	}
	return models.VoterRecord{
		Address:     hash.Address,
		Poll:        hash.Poll,
		Voter:       hash.Voter,
		OptionIndex: hash.OptionIndex,
		Bump:        hash.Bump,
		CreatedAt:   time.Unix(0, hash.CreatedAt),
	}, nil
}

func (s *Store) CountVoterRecords(ctx context.Context, poll string) (int64, error) {
	count, err := s.rdb.SCard(ctx, s.votersKey(poll)).Result()
	if err != nil {
		return 0, logError("count voter records", err, poll)
	}
	return count, nil
}

// TallySnapshot reads the poll hash and its voter set inside MULTI, which
// redis never interleaves with a vote script.
func (s *Store) TallySnapshot(ctx context.Context, address string) (models.Poll, int64, error) {
	var pollCmd *redis.MapStringStringCmd
	var countCmd *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pollCmd = pipe.HGetAll(ctx, s.pollKey(address))
		countCmd = pipe.SCard(ctx, s.votersKey(address))
		return nil
	})
	if err != nil {
		return models.Poll{}, 0, logError("read tally snapshot", err, address)
	}

	data := pollCmd.Val()
	if len(data) == 0 {
		return models.Poll{}, 0, ledger.ErrPollNotFound
	}
	poll, err := parsePoll(data)
	if err != nil {
		return poll, 0, err
	}
	return poll, countCmd.Val(), nil
}

func (s *Store) ClosePoll(ctx context.Context, address string, authority string) error {
	keys := []string{s.pollKey(address)}
	result, err := closePollScript.Run(ctx, s.rdb, keys, authority, s.now().UnixNano()).Int()
	if err != nil {
		return logError("close poll", err, address)
	}
	switch result {
	case resultApplied:
		return nil
	case resultNotFound:
		return ledger.ErrPollNotFound
	case resultNotAuthority:
		return ledger.ErrNotAuthority
	case resultClosed:
		return ledger.ErrPollClosed
	default:
		return fmt.Errorf("unexpected close script result %d", result)
	}
}

func logError(action string, err error, subject string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	log.Error().Err(err).Str("subject", subject).Msgf("An error occurred when trying to %s in redis...", action)
	return fmt.Errorf("unable to %s: %w", action, err)
}
