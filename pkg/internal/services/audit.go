package services

import (
	"context"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/ledger"
	"github.com/rs/zerolog/log"
)

type TallyMismatch struct {
	Poll    string `json:"poll"`
	Votes   uint64 `json:"votes"`
	Records int64  `json:"records"`
}

// AuditTallies walks every poll and compares the embedded tally with the
// voter records stored for it. Each poll is read in one snapshot with its
// record count, so votes cast during the walk are never reported.
func (v *Ledger) AuditTallies(ctx context.Context) ([]TallyMismatch, error) {
	polls, err := v.Store.ListPolls(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("unable to list polls: %v", err)
	}

	var out []TallyMismatch
	for _, item := range polls {
		poll, count, err := v.Store.TallySnapshot(ctx, item.Address)
		if err != nil {
			return out, fmt.Errorf("unable to read tally of %s: %v", item.Address, err)
		}
		total := ledger.TotalVotes(poll)
		if count >= 0 && uint64(count) == total {
			continue
		}
		log.Error().
			Str("poll", poll.Address).
			Uint64("votes", total).
			Int64("records", count).
			Msg("Poll tally does not match its voter records!")
		out = append(out, TallyMismatch{Poll: poll.Address, Votes: total, Records: count})
	}

	return out, nil
}

func (v *Ledger) DoAutoTallyAudit() {
	log.Debug().Msg("Now auditing poll tallies...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	mismatches, err := v.AuditTallies(ctx)
	if err != nil {
		log.Error().Err(err).Msg("An error occurred when auditing poll tallies...")
		return
	}

	log.Debug().
		Int("mismatches", len(mismatches)).
		Dur("elapsed", time.Since(start)).
		Msg("Audit of poll tallies has been done.")
}
