package engine

import (
	"crypto/rand"
	"math/big"
)

const (
	publicIDAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	publicIDLength      = 6
	maxPublicIDAttempts = 5
)

var alphabetSize = big.NewInt(int64(len(publicIDAlphabet)))

// newPublicID returns a random six-character uppercase alphanumeric code.
func newPublicID() string {
	b := make([]byte, publicIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic(err)
		}
		b[i] = publicIDAlphabet[n.Int64()]
	}
	return string(b)
}
