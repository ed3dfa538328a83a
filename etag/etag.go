// Package etag computes content-derived version tokens for state
// documents: base64(sha256("{lastModifiedMs}_{canonicalJSON(data)}")).
package etag

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// Compute returns the ETag for a document with the given last-modified
// timestamp (unix milliseconds) and data. data may be any JSON-marshalable
// value, including json.RawMessage. Equal (lastModifiedMs, data) pairs
// always produce equal ETags; differing inputs produce differing ETags
// with overwhelming probability.
func Compute(lastModifiedMs int64, data any) (string, error) {
	canon, err := Canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("etag: canonicalize: %w", err)
	}
	input := fmt.Sprintf("%d_%s", lastModifiedMs, canon)
	sum := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// Canonicalize marshals data to JSON with deterministic object-key
// ordering and no insignificant whitespace, so that logically identical
// payloads always produce byte-identical output regardless of how the
// caller constructed them (struct field order, map iteration order, or
// whitespace in a hand-built json.RawMessage).
func Canonicalize(data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	var buf []byte
	buf, err = appendCanonical(buf, v)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, t[k])
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
		return buf, nil
	case []any:
		buf = append(buf, '[')
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, e)
			if err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}

// Equal reports whether two ETags are identical. ETag comparison is
// byte-wise string equality.
func Equal(a, b string) bool { return a == b }
