package tasks

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	idSuffixLen   = 2
	idMaxAttempts = 100
)

// GenerateID builds a short id of the form HHMMSS plus two random characters.
// taken reports collisions; after idMaxAttempts it falls back to a UUID prefix.
func GenerateID(now time.Time, taken func(string) bool) string {
	prefix := now.Format("150405")
	for range idMaxAttempts {
		var b strings.Builder
		b.Grow(len(prefix) + idSuffixLen)
		b.WriteString(prefix)
		for range idSuffixLen {
			b.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
		}
		candidate := b.String()
		if taken == nil || !taken(candidate) {
			return candidate
		}
	}
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
