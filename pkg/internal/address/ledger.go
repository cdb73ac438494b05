package address

import (
	"crypto/sha256"
	"encoding/binary"
)

const (
	PollNamespace = "poll"
	VoteNamespace = "vote"
)

// DefaultProgram is used when no program address is configured.
var DefaultProgram = Address(sha256.Sum256([]byte("hypernet.ballot")))

func PollSeeds(creator Address, pollID uint64) [][]byte {
	id := make([]byte, 8)
	binary.LittleEndian.PutUint64(id, pollID)
	return [][]byte{[]byte(PollNamespace), creator.Bytes(), id}
}

// VoteSeeds keys the voter record on the poll address rather than the
// poll id, two creators may both own a poll with the same id.
func VoteSeeds(voter Address, poll Address) [][]byte {
	return [][]byte{[]byte(VoteNamespace), voter.Bytes(), poll.Bytes()}
}

func PollAddress(program Address, creator Address, pollID uint64) (Address, uint8, error) {
	return FindAddress(PollSeeds(creator, pollID), program)
}

func VoteAddress(program Address, voter Address, poll Address) (Address, uint8, error) {
	return FindAddress(VoteSeeds(voter, poll), program)
}

// VerifyPollAddress checks that addr is the canonical poll address of
// (creator, pollID).
func VerifyPollAddress(program Address, addr Address, creator Address, pollID uint64) bool {
	expected, _, err := PollAddress(program, creator, pollID)
	return err == nil && expected == addr
}
