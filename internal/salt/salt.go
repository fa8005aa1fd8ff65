// Package salt generates the rotating authentication salts described in
// §4.6/§6 and maintains the bounded, newest-first ring the connection
// state machine checks client keys against.
package salt

import (
	"crypto/rand"
	"math/big"
	"sync"
)

const (
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	saltLen        = 16
)

// saltMin/saltMax bound a 16-digit base62 number: [62^15, 62^16).
var (
	saltMin = new(big.Int).Exp(big.NewInt(62), big.NewInt(15), nil)
	saltMax = new(big.Int).Exp(big.NewInt(62), big.NewInt(16), nil)
)

// Generate returns a cryptographically random 16-character base62 salt
// in [62^15, 62^16), so every salt is exactly 16 digits wide.
func Generate() (string, error) {
	span := new(big.Int).Sub(saltMax, saltMin)
	offset, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}
	n := new(big.Int).Add(saltMin, offset)
	return encodeBase62(n), nil
}

func encodeBase62(n *big.Int) string {
	buf := make([]byte, saltLen)
	base := big.NewInt(62)
	mod := new(big.Int)
	n = new(big.Int).Set(n)
	for i := saltLen - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		buf[i] = base62Alphabet[mod.Int64()]
	}
	return string(buf)
}

// Ring is the bounded, newest-first salt history the server verifies
// client keys against. A client's key is accepted if it matches
// md5(salt||username) for any retained salt (see conn.AwaitingIdent).
//
// The historical push-front/rotate-on-full algorithm (push_front while
// under capacity; once full, overwrite the back element and rotate
// right by one) is mathematically equivalent to: prepend the new salt,
// then drop the oldest entry if over capacity. We implement the
// simpler form; both produce the same newest-first order.
type Ring struct {
	mu       sync.Mutex
	capacity int
	salts    []string
}

// NewRing creates a Ring retaining at most capacity salts.
func NewRing(capacity int) *Ring {
	return &Ring{capacity: capacity}
}

// Push adds a freshly generated salt to the front of the ring, evicting
// the oldest entry if the ring is already at capacity.
func (r *Ring) Push(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity <= 0 {
		return
	}
	r.salts = append([]string{s}, r.salts...)
	if len(r.salts) > r.capacity {
		r.salts = r.salts[:r.capacity]
	}
}

// Snapshot returns a copy of the current ring contents, newest-first.
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.salts))
	copy(out, r.salts)
	return out
}

// Len reports the number of salts currently retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.salts)
}
