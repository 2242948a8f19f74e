// Package identity derives stable passage keys from an origin and a position.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Assign returns hex(sha1(origin)) + "_" + position. The result only contains
// [0-9a-f_] so it is safe as a key in every supported backend.
func Assign(origin string, position int) string {
	return Digest(origin) + "_" + strconv.Itoa(position)
}

// Digest is the origin part of a passage id.
func Digest(origin string) string {
	h := sha1.Sum([]byte(origin))
	return hex.EncodeToString(h[:])
}

// Parse splits an id produced by Assign into its digest and position.
func Parse(id string) (digest string, position int, err error) {
	i := strings.LastIndexByte(id, '_')
	if i != sha1.Size*2 {
		return "", 0, fmt.Errorf("identity: malformed id %q", id)
	}
	if _, err := hex.DecodeString(id[:i]); err != nil {
		return "", 0, fmt.Errorf("identity: malformed digest in %q: %w", id, err)
	}
	position, err = strconv.Atoi(id[i+1:])
	if err != nil || position < 0 {
		return "", 0, fmt.Errorf("identity: malformed position in %q", id)
	}
	return id[:i], position, nil
}
