package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in process memory. A single mutex stands in for
// the total order a real execution environment imposes on operations.
type MemoryStore struct {
	mu     sync.Mutex
	polls  map[string]models.Poll
	voters map[string]models.VoterRecord
	counts map[string]int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		polls:  make(map[string]models.Poll),
		voters: make(map[string]models.VoterRecord),
		counts: make(map[string]int64),
		now:    time.Now,
	}
}

func (s *MemoryStore) CreatePoll(ctx context.Context, poll models.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, occupied := s.polls[poll.Address]; occupied {
		return ErrPollExists
	}
	poll = ClonePoll(poll)
	poll.CreatedAt = s.now()
	poll.UpdatedAt = poll.CreatedAt
	s.polls[poll.Address] = poll
	return nil
}

func (s *MemoryStore) GetPoll(ctx context.Context, address string) (models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[address]
	if !ok {
		return poll, ErrPollNotFound
	}
	return ClonePoll(poll), nil
}

func (s *MemoryStore) ListPolls(ctx context.Context, authority string) ([]models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Poll, 0, len(s.polls))
	for _, poll := range s.polls {
		if authority != "" && poll.Authority != authority {
			continue
		}
		out = append(out, ClonePoll(poll))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out, nil
}

func (s *MemoryStore) CommitVote(ctx context.Context, record models.VoterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, occupied := s.voters[record.Address]; occupied {
		return ErrAlreadyVoted
	}
	poll, ok := s.polls[record.Poll]
	if !ok {
		return ErrPollNotFound
	}
	if !poll.Status {
		return ErrPollClosed
	}
	if err := CheckOptionIndex(poll, record.OptionIndex); err != nil {
		return err
	}

	poll = ClonePoll(poll)
	poll.Options[record.OptionIndex].Votes++
	poll.UpdatedAt = s.now()
	record.CreatedAt = poll.UpdatedAt

	s.polls[poll.Address] = poll
	s.voters[record.Address] = record
	s.counts[poll.Address]++
	return nil
}

func (s *MemoryStore) GetVoterRecord(ctx context.Context, address string) (models.VoterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.voters[address]
	if !ok {
		return record, ErrVoterRecordNotFound
	}
	return record, nil
}

func (s *MemoryStore) CountVoterRecords(ctx context.Context, poll string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[poll], nil
}

func (s *MemoryStore) TallySnapshot(ctx context.Context, address string) (models.Poll, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[address]
	if !ok {
		return poll, 0, ErrPollNotFound
	}
	return ClonePoll(poll), s.counts[address], nil
}

func (s *MemoryStore) ClosePoll(ctx context.Context, address string, authority string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[address]
	if !ok {
		return ErrPollNotFound
	}
	if poll.Authority != authority {
		return ErrNotAuthority
	}
	if !poll.Status {
		return ErrPollClosed
	}
	poll = ClonePoll(poll)
	poll.Status = false
	poll.UpdatedAt = s.now()
	s.polls[address] = poll
	return nil
}
