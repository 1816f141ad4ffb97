package attendance

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

func newRecordID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
