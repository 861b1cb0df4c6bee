// Package ids issues the short order reference shown to customers.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Length is the number of characters in an order reference.
const Length = 9

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// New returns a random uppercase alphanumeric reference derived from a v4 UUID.
func New() string {
	return FromUUID(uuid.New())
}

// FromUUID maps the UUID bytes onto the reference alphabet.
func FromUUID(u uuid.UUID) string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(alphabet[int(u[i])%len(alphabet)])
	}
	return b.String()
}

// Valid reports whether s has the shape of a reference.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
