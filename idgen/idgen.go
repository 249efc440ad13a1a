// Package idgen generates the identifiers docmerge hands out.
//
// Batches get time-sortable UUIDv7 ids with a "bat_" prefix so the history
// table orders naturally; request ids are short NanoIDs. Constructors that
// need ids accept a Generator so tests can pin them.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Prefixes of the identifier families.
const (
	BatchPrefix   = "bat_"
	RequestPrefix = "req_"
)

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Batch generates batch ids ("bat_<uuidv7>").
var Batch Generator = Prefixed(BatchPrefix, Default)

// Request generates request ids ("req_<nanoid>").
var Request Generator = Prefixed(RequestPrefix, NanoID(12))

// ParseBatch validates a batch id: the batch prefix followed by a UUID.
// It returns the id in canonical (lower-case) form.
func ParseBatch(id string) (string, error) {
	rest, ok := strings.CutPrefix(id, BatchPrefix)
	if !ok {
		return "", fmt.Errorf("idgen: batch id %q lacks %q prefix", id, BatchPrefix)
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid batch id: %w", err)
	}
	return BatchPrefix + u.String(), nil
}
