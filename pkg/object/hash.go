package object

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pjbgf/sha1cd"
)

// HashSize is the length of a hex-encoded object id.
const HashSize = 40

// HashObject computes the SHA-1 of the envelope "type len\0content",
// exactly as git does.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1cd.New()
	fmt.Fprintf(h, "%s %d\x00", objType, len(data))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ParseHash validates a hex object id and normalizes it to lowercase.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != HashSize {
		return "", fmt.Errorf("parse hash %q: want %d hex characters", s, HashSize)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("parse hash %q: %w", s, err)
	}
	return Hash(s), nil
}

// IsHash reports whether s looks like a full hex object id.
func IsHash(s string) bool {
	_, err := ParseHash(s)
	return err == nil
}

// Short returns the first 8 characters of the id for display.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}
