package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps polls and voter records in postgres. Primary keys on the
// derived addresses give create-if-absent, and a vote is one transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreatePoll(ctx context.Context, poll models.Poll) error {
	poll = ledger.ClonePoll(poll)
	if err := s.db.WithContext(ctx).Create(&poll).Error; err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrPollExists
		}
		return logError("create poll", err, poll.Address)
	}
	return nil
}

func (s *Store) GetPoll(ctx context.Context, address string) (models.Poll, error) {
	return getPoll(s.db.WithContext(ctx), address)
}

func getPoll(tx *gorm.DB, address string) (models.Poll, error) {
	var poll models.Poll
	if err := tx.Where("address = ?", address).First(&poll).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return poll, ledger.ErrPollNotFound
		}
		return poll, logError("get poll", err, address)
	}
	return poll, nil
}

func (s *Store) ListPolls(ctx context.Context, authority string) ([]models.Poll, error) {
	tx := s.db.WithContext(ctx).Order("address ASC")
	if authority != "" {
		tx = tx.Where("authority = ?", authority)
	}

	var polls []models.Poll
	if err := tx.Find(&polls).Error; err != nil {
		return nil, logError("list polls", err, authority)
	}
	return polls, nil
}

func (s *Store) CommitVote(ctx context.Context, record models.VoterRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			if isUniqueViolation(err) {
				return ledger.ErrAlreadyVoted
			}
			return logError("create voter record", err, record.Address)
		}

		path := fmt.Sprintf("{%d,votes}", record.OptionIndex)
		result := tx.Model(&models.Poll{}).
			Where("address = ? AND status = ? AND jsonb_array_length(options) > ?", record.Poll, true, int(record.OptionIndex)).
			Update("options", gorm.Expr(
				"jsonb_set(options, ?::text[], to_jsonb(COALESCE((options #>> ?::text[])::numeric, 0) + 1))",
				path, path,
			))
		if result.Error != nil {
			return logError("increase poll tally", result.Error, record.Poll)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		// Nothing matched, find out which guard refused the vote.
		poll, err := getPoll(tx, record.Poll)
		if err != nil {
			return err
		}
		if !poll.Status {
			return ledger.ErrPollClosed
		}
		return ledger.ErrInvalidOptionIndex
	})
}

func (s *Store) GetVoterRecord(ctx context.Context, address string) (models.VoterRecord, error) {
	var record models.VoterRecord
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return record, ledger.ErrVoterRecordNotFound
		}
		return record, logError("get voter record", err, address)
	}
	return record, nil
}

func (s *Store) CountVoterRecords(ctx context.Context, poll string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.VoterRecord{}).Where("poll = ?", poll).Count(&count).Error; err != nil {
		return 0, logError("count voter records", err, poll)
	}
	return count, nil
}

func (s *Store) TallySnapshot(ctx context.Context, address string) (poll models.Poll, count int64, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if poll, err = getPoll(tx, address); err != nil {
			return err
		}
		if err := tx.Model(&models.VoterRecord{}).Where("poll = ?", address).Count(&count).Error; err != nil {
			return logError("count voter records", err, address)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return poll, count, err
}

func (s *Store) ClosePoll(ctx context.Context, address string, authority string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Poll{}).
			Where("address = ? AND authority = ? AND status = ?", address, authority, true).
			Update("status", false)
		if result.Error != nil {
			return logError("close poll", result.Error, address)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		poll, err := getPoll(tx, address)
		if err != nil {
			return err
		}
		if poll.Authority != authority {
			return ledger.ErrNotAuthority
		}
		return ledger.ErrPollClosed
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func logError(action string, err error, subject string) error {
	log.Error().Err(err).Str("subject", subject).Msgf("An error occurred when trying to %s...", action)
	return fmt.Errorf("unable to %s: %w", action, err)
}
