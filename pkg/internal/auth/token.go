package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/ballot/pkg/internal/address"
	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator proves a caller identity. The subject of the token is the
// base58 public key of the caller and the token has to be signed by the
// matching private key.
type Authenticator struct {
	Leeway time.Duration
}

func (v Authenticator) Authenticate(token string) (address.Address, error) {
	var caller address.Address
	claims := new(jwt.RegisteredClaims)

	_, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (any, error) {
		subject, err := tk.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		caller, err = address.Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("subject is not an identity: %v", err)
		}
		if !address.IsOnCurve(caller.Bytes()) {
			return nil, fmt.Errorf("subject is not a public key")
		}
		return caller.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	)
	if err != nil {
		return address.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return caller, nil
}

// SignToken issues a token proving the identity of the key holder.
func SignToken(key ed25519.PrivateKey, ttl time.Duration) (string, error) {
	caller, err := address.FromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
}
