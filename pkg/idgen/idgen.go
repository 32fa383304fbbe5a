// Package idgen allocates the 16-hex process-unique identifiers used for
// user_id, message_id, session_id, and file_id throughout the fabric.
package idgen

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New16Hex returns a fresh 16-character lowercase hex id, derived from the
// first 8 bytes of a random UUIDv4. 8 bytes of UUIDv4 entropy is ample for a
// process-unique id space and keeps the id exactly 16 hex characters, the
// width spec.md requires everywhere an id is compared or stored.
func New16Hex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}
