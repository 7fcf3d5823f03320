// Package idgen generates the short identifiers the tunnel uses to name
// in-flight user sessions and, for clients that don't pick one, the
// clientKey string.
package idgen

import (
	"fmt"

	"github.com/go-zoox/random"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// UserIDLength is the length of a generated UserId. Nanoid's default
// alphabet is all printable, so this also satisfies the "<=12 printable
// chars" bound from the wire spec.
const UserIDLength = 12

// NewUserID returns a new server-assigned UserId naming one SOCKS5 flow.
func NewUserID() (string, error) {
	id, err := nanoid.New(UserIDLength)
	if err != nil {
		return "", fmt.Errorf("idgen: failed to generate user id: %v", err)
	}
	return id, nil
}

// clientKeySuffixLength is the random portion appended to the ZC- prefix
// when a client doesn't pick its own clientKey.
const clientKeySuffixLength = 12

// ClientKeyPrefix is the prefix a server may require of AUTH's clientKey.
const ClientKeyPrefix = "ZC-"

// NewClientKey returns a random clientKey of the form "ZC-<random>".
func NewClientKey() string {
	return ClientKeyPrefix + random.String(clientKeySuffixLength)
}
