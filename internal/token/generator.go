// Package token provides opaque secret generation for the OAuth2 engine.
// Authorization codes, access tokens, and refresh tokens are all opaque
// bearer values: validity is determined solely by server-side lookup, so
// the only requirements on generation are uniqueness and unpredictability.
//
// Security considerations:
//   - Values are drawn from crypto/rand; prior outputs reveal nothing
//     about future ones.
//   - 32 random bytes (256 bits) make collisions vanishingly unlikely;
//     the store's keyspace is the uniqueness backstop.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultSecretLength is the number of random bytes in a generated value.
const DefaultSecretLength = 32

// Generator produces opaque, unguessable secret strings for codes and
// tokens. Callers treat generation as infallible.
type Generator interface {
	// Generate returns a new opaque secret. Implementations must not
	// return a value predictable from prior outputs.
	Generate() string
}

// RandomGenerator is the production Generator backed by crypto/rand.
type RandomGenerator struct {
	length int
}

// NewGenerator returns a RandomGenerator producing values of
// DefaultSecretLength random bytes, base64 URL encoded.
func NewGenerator() *RandomGenerator {
	return &RandomGenerator{length: DefaultSecretLength}
}

// Generate returns a base64 URL encoded string of freshly generated
// random bytes. A failure of the system randomness source is
// unrecoverable and panics rather than returning a guessable value.
func (g *RandomGenerator) Generate() string {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("token: system randomness unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
