package address

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	Size = 32

	MaxSeeds      = 16
	MaxSeedLength = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrInvalidSeeds   = errors.New("derived address lies on the ed25519 curve")
	ErrTooManySeeds   = fmt.Errorf("more than %d seeds", MaxSeeds)
	ErrMaxSeedLength  = fmt.Errorf("seed longer than %d bytes", MaxSeedLength)
	ErrNoViableBump   = errors.New("unable to find a viable bump seed")
	ErrInvalidAddress = errors.New("invalid address")
)

// Address is a 32 byte account location. Caller identities (ed25519 public
// keys) and derived record addresses share this type.
type Address [Size]byte

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) PublicKey() ed25519.PublicKey {
	return bytes.Clone(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes the base58 text form of an address.
func Parse(text string) (Address, error) {
	raw, err := base58.Decode(text)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return FromBytes(raw)
}

func FromBytes(raw []byte) (Address, error) {
	var out Address
	if len(raw) != Size {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, Size, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// FromPublicKey converts an ed25519 public key into the identity address.
func FromPublicKey(key ed25519.PublicKey) (Address, error) {
	return FromBytes(key)
}

// IsOnCurve reports whether the address decodes to a point of the ed25519
// curve, i.e. whether someone could hold a signing key for it.
func IsOnCurve(raw []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// CreateAddress hashes the seeds together with the program address. The
// result is rejected when it lands on the curve.
func CreateAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrTooManySeeds
	}

	hasher := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, ErrMaxSeedLength
		}
		hasher.Write(seed)
	}
	hasher.Write(program[:])
	hasher.Write([]byte(derivationMarker))

	var out Address
	copy(out[:], hasher.Sum(nil))
	if IsOnCurve(out[:]) {
		return Address{}, ErrInvalidSeeds
	}
	return out, nil
}

// FindAddress searches the bump seed from 255 downwards and returns the first
// address that is off the curve.
func FindAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		out, err := CreateAddress(withBump, program)
		if err == nil {
			return out, uint8(bump), nil
		} else if !errors.Is(err, ErrInvalidSeeds) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}
