package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

const (
	MaxPollDescription   = 256
	MaxOptionDescription = 64
	MaxOptions           = 10
)

type Poll struct {
	Address     string                          `json:"address" gorm:"primaryKey;size:44"`
	PollID      PollID                          `json:"poll_id" gorm:"type:numeric(20,0);not null"`
	Authority   string                          `json:"authority" gorm:"size:44;index;not null"`
	Description string                          `json:"description" gorm:"size:256"`
	Options     datatypes.JSONSlice[PollOption] `json:"options"`
	Status      bool                            `json:"status"`
	Bump        uint8                           `json:"bump"`
	CreatedAt   time.Time                       `json:"created_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`

	Metric *PollMetric `json:"metric,omitempty" gorm:"-"`
}

type PollOption struct {
	Description string `json:"description"`
	Votes       uint64 `json:"votes"`
}

type PollMetric struct {
	TotalVotes          uint64          `json:"total_votes"`
	ByOptions           map[int]uint64  `json:"by_options"`
	ByOptionsPercentage map[int]float64 `json:"by_options_percentage"`
}

// VoterRecord marks that voter has voted on poll. Its creation is the vote.
type VoterRecord struct {
	Address     string    `json:"address" gorm:"primaryKey;size:44"`
	Poll        string    `json:"poll" gorm:"size:44;index;not null"`
	Voter       string    `json:"voter" gorm:"size:44;not null"`
	OptionIndex uint8     `json:"option_index"`
	Bump        uint8     `json:"bump"`
	CreatedAt   time.Time `json:"created_at"`
}

// PollID is stored as numeric text since postgres has no unsigned bigint.
type PollID uint64

func (v PollID) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(v), 10), nil
}

func (v *PollID) Scan(src any) error {
	var text string
	switch val := src.(type) {
	case nil:
		*v = 0
		return nil
	case int64:
		if val < 0 {
			return fmt.Errorf("negative poll id %d", val)
		}
		*v = PollID(val)
		return nil
	case string:
		text = val
	case []byte:
		text = string(val)
	default:
		return fmt.Errorf("unsupported poll id type %T", src)
	}
	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("unable to parse poll id: %v", err)
	}
	*v = PollID(parsed)
	return nil
}
