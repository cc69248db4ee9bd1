package deduplication

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"hush/pkg/models"
)

// Hasher computes exact-duplicate fingerprints.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: strings.ToLower(algorithm)}
}

// Fingerprint is stable over (user, event type, dedupe key). Without a
// dedupe key the normalized message text stands in for it.
func (h *Hasher) Fingerprint(event *models.NotificationEvent) string {
	key := event.DedupeKey
	if key == "" {
		key = "msg:" + h.sum(NormalizeMessage(event.Message))
	} else {
		key = "key:" + key
	}

	var b strings.Builder
	b.WriteString(event.UserID)
	b.WriteByte('|')
	b.WriteString(event.EventType)
	b.WriteByte('|')
	b.WriteString(key)

	return h.sum(b.String())
}

func (h *Hasher) sum(input string) string {
	switch h.algorithm {
	case "md5":
		sum := md5.Sum([]byte(input))
		return hex.EncodeToString(sum[:])
	case "sha1":
		sum := sha1.Sum([]byte(input))
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256([]byte(input))
		return hex.EncodeToString(sum[:])
	}
}

// NormalizeMessage lowercases text and collapses runs of whitespace.
func NormalizeMessage(msg string) string {
	return strings.Join(strings.Fields(strings.ToLower(msg)), " ")
}
