// Package helcim integrates with the hosted payment page API: opening
// checkout transactions, verifying confirmation hashes and recomputing the
// keyed digest over client-reported payment outcomes.
package helcim

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Outcome is the flat record of processor-defined fields reported by the
// hosted widget after a payment attempt. Values are kept as raw JSON so the
// digest input carries them exactly as received, without type coercion.
type Outcome map[string]json.RawMessage

// String returns the string value of a field, or "" when the field is absent
// or not a JSON string.
func (o Outcome) String(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Has reports whether the field is present with a non-null value.
func (o Outcome) Has(key string) bool {
	raw, ok := o[key]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// CanonicalJSON serializes the outcome with keys in lexicographic order.
// Two semantically identical payloads differing only in field order must
// produce identical bytes here, since those bytes feed the digest.
func CanonicalJSON(o Outcome) ([]byte, error) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		var compact bytes.Buffer
		if err := json.Compact(&compact, o[k]); err != nil {
			return nil, err
		}
		buf.Write(compact.Bytes())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ComputeHash returns the lowercase hex SHA-256 of the canonical outcome
// JSON concatenated with the verification secret. The secret must be the one
// persisted server-side at initialization, never a client-supplied copy.
func ComputeHash(o Outcome, secret string) (string, error) {
	canonical, err := CanonicalJSON(o)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)), nil
}
