package lifecycle

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Crockford base32 without I, L, O and U so IDs survive being read aloud
// and retyped.
const trackingAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const trackingPrefix = "DW"

// NewTrackingID returns an identifier like "DW-7K2M-Q9XA" carrying 40 random bits.
func NewTrackingID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate tracking id: %w", err)
	}

	var b strings.Builder
	b.Grow(len(trackingPrefix) + 10)
	b.WriteString(trackingPrefix)
	for i, v := range buf {
		if i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(trackingAlphabet[v&31])
	}
	return b.String(), nil
}

// NormalizeTrackingID upper-cases input and maps the look-alike letters
// Crockford base32 folds (O→0, I/L→1) so a mistyped ID still matches.
func NormalizeTrackingID(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(id, trackingPrefix+"-") {
		return id
	}
	body := strings.NewReplacer("O", "0", "I", "1", "L", "1").Replace(id[len(trackingPrefix):])
	return trackingPrefix + body
}
