// Package id generates identifiers for ledger trades and pending
// recommendations.
package id

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a ULID string. Ledger trades use ULIDs so the file stays in
// creation order even for trades appended in the same millisecond; ulid.Make
// draws monotonic entropy and is safe for concurrent use.
func New() string {
	return ulid.Make().String()
}

// Short returns an 8 character random hex token. Pending recommendations use
// it because operators type the token on the command line.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
