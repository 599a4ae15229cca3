package cmn

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

// Alphabet for generating correlation ids similar to shortid.DEFAULT_ABC.
// NOTE: len(uuidABC) > 0x3f.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sid *shortid.Shortid

func init() {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, uint64(rand.Int63()))
}

// GenRequestID produces a short, human-readable id used purely for
// request correlation in logs and transaction errors. It is distinct
// from lease ids and ETags, which the spec requires to be UUIDs.
func GenRequestID() string {
	return sid.MustGenerate()
}

// GenUUID produces a lease id or ETag per spec §3/§6 ("ETags are opaque
// strings; implementation uses UUIDs on mutation").
func GenUUID() string {
	return uuid.NewString()
}

// IsValidUUID reports whether s parses as a UUID, used to validate a
// caller-proposed lease id.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
