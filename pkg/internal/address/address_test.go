package address

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentity(t *testing.T) Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	out, err := FromPublicKey(pub)
	require.NoError(t, err)
	return out
}

func TestPollAddressIsDeterministic(t *testing.T) {
	creator := newIdentity(t)

	first, firstBump, err := PollAddress(DefaultProgram, creator, 1)
	require.NoError(t, err)
	second, secondBump, err := PollAddress(DefaultProgram, creator, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstBump, secondBump)
	assert.False(t, IsOnCurve(first.Bytes()))
}

func TestPollAddressSeparatesInputs(t *testing.T) {
	alice := newIdentity(t)
	bob := newIdentity(t)

	a1, _, err := PollAddress(DefaultProgram, alice, 1)
	require.NoError(t, err)
	a2, _, err := PollAddress(DefaultProgram, alice, 2)
	require.NoError(t, err)
	b1, _, err := PollAddress(DefaultProgram, bob, 1)
	require.NoError(t, err)

	assert.NotEqual(t, a1, a2)
	assert.NotEqual(t, a1, b1)

	otherProgram := Address{1}
	p1, _, err := PollAddress(otherProgram, alice, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a1, p1)
}

func TestVoteAddressDependsOnPollAddress(t *testing.T) {
	alice := newIdentity(t)
	bob := newIdentity(t)
	voter := newIdentity(t)

	// Both creators reuse poll id 0.
	alicePoll, _, err := PollAddress(DefaultProgram, alice, 0)
	require.NoError(t, err)
	bobPoll, _, err := PollAddress(DefaultProgram, bob, 0)
	require.NoError(t, err)

	v1, _, err := VoteAddress(DefaultProgram, voter, alicePoll)
	require.NoError(t, err)
	v2, _, err := VoteAddress(DefaultProgram, voter, bobPoll)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	pollAsVote, _, err := VoteAddress(DefaultProgram, alice, alicePoll)
	require.NoError(t, err)
	assert.NotEqual(t, alicePoll, pollAsVote)
}

func TestCreateAddressReproducesFoundBump(t *testing.T) {
	creator := newIdentity(t)
	seeds := PollSeeds(creator, 42)

	found, bump, err := FindAddress(seeds, DefaultProgram)
	require.NoError(t, err)

	recreated, err := CreateAddress(append(seeds, []byte{bump}), DefaultProgram)
	require.NoError(t, err)
	assert.Equal(t, found, recreated)
	assert.True(t, VerifyPollAddress(DefaultProgram, found, creator, 42))
	assert.False(t, VerifyPollAddress(DefaultProgram, found, creator, 43))
}

func TestSeedLimits(t *testing.T) {
	_, err := CreateAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, DefaultProgram)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	tooMany := make([][]byte, MaxSeeds+1)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, err = CreateAddress(tooMany, DefaultProgram)
	assert.ErrorIs(t, err, ErrTooManySeeds)

	// The bump takes the last free slot.
	_, _, err = FindAddress(tooMany[:MaxSeeds], DefaultProgram)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestIdentityKeysAreOnCurve(t *testing.T) {
	identity := newIdentity(t)
	assert.True(t, IsOnCurve(identity.Bytes()))
}

func TestParse(t *testing.T) {
	identity := newIdentity(t)

	parsed, err := Parse(identity.String())
	require.NoError(t, err)
	assert.Equal(t, identity, parsed)

	_, err = Parse("0OIl")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Parse("3mJr7AoUXx2Wqd")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	var decoded Address
	require.NoError(t, decoded.UnmarshalText([]byte(identity.String())))
	assert.Equal(t, identity, decoded)
}
