// Package canonical encodes values as RFC 8785 (JCS) JSON so that equal
// results always produce identical bytes.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
)

// ErrInexactNumber is returned when JCS would round a number, since it
// serializes every number as an IEEE double.
var ErrInexactNumber = errors.New("number not exactly representable as a double")

// maxExactInteger is 2^53; integers at or beyond it can collide as doubles.
const maxExactInteger = 1 << 53

// Marshal encodes v as canonical JSON.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return Transform(raw)
}

// Transform canonicalizes raw JSON. It fails with ErrInexactNumber rather
// than let two different documents share a canonical form.
func Transform(raw []byte) ([]byte, error) {
	if err := checkExact(raw); err != nil {
		return nil, err
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

func checkExact(raw []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("canonicalize: %w", err)
		}
		number, ok := token.(json.Number)
		if !ok || strings.ContainsAny(number.String(), ".eE") {
			continue
		}
		magnitude, err := strconv.ParseUint(strings.TrimPrefix(number.String(), "-"), 10, 64)
		if err != nil || magnitude >= maxExactInteger {
			return fmt.Errorf("%w: %s", ErrInexactNumber, number)
		}
	}
}

// Digest returns the sha256 hex digest of canonical bytes.
func Digest(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
