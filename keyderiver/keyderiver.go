// Package keyderiver implements C1: deterministic derivation of cache keys
// and feed IDs from request parameters. Two requests with semantically
// identical parameters (modulo key order and string case) must derive the
// same cache key, and parameter sets larger than a configured size must
// collapse to a fixed-width hash rather than growing the key unboundedly.
package keyderiver

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// InputError indicates the supplied parameters could not be canonicalized
// because some key or value in them has no JSON encoding (a channel, a
// function, and the like).
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func newInputError(format string, args ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// Deriver turns request parameters into cache keys, using a configured
// default key name for the unparameterized case and a size threshold above
// which the canonical form is hashed instead of used verbatim.
type Deriver struct {
	DefaultCacheKey  string
	MaxCommonKeySize int
}

// New builds a Deriver from the resolved DEFAULT_CACHE_KEY and
// MAX_COMMON_KEY_SIZE settings.
func New(defaultCacheKey string, maxCommonKeySize int) *Deriver {
	return &Deriver{DefaultCacheKey: defaultCacheKey, MaxCommonKeySize: maxCommonKeySize}
}

// Fingerprint produces the canonical, order-independent, case-folded string
// representation of params. Map keys are sorted lexicographically at every
// level; string leaf values are lowercased; numbers and bools are rendered
// via their JSON representation so that 1 and 1.0 fingerprint identically
// to any other encoder producing the same JSON number.
//
// params must be a JSON-object-shaped map (map[string]interface{}); anything
// else is an InputError, since a cache key derived from a bare scalar or
// array has no stable parameter semantics.
func Fingerprint(params map[string]interface{}) (string, error) {
	if params == nil {
		return "{}", nil
	}
	canon, err := canonicalize(params)
	if err != nil {
		return "", err
	}
	return canon, nil
}

func canonicalize(v interface{}) (string, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return "", newInputError("keyderiver: cannot encode key %q: %v", k, err)
			}
			b.Write(encodedKey)
			b.WriteByte(':')
			child, err := canonicalize(val[k])
			if err != nil {
				return "", err
			}
			b.WriteString(child)
		}
		b.WriteByte('}')
		return b.String(), nil

	case []interface{}:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			child, err := canonicalize(item)
			if err != nil {
				return "", err
			}
			b.WriteString(child)
		}
		b.WriteByte(']')
		return b.String(), nil

	case string:
		encoded, err := json.Marshal(strings.ToLower(val))
		if err != nil {
			return "", newInputError("keyderiver: cannot encode string value: %v", err)
		}
		return string(encoded), nil

	case nil:
		return "null", nil

	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", newInputError("keyderiver: cannot encode value %T: %v", val, err)
		}
		return string(encoded), nil
	}
}

// hashedFingerprint returns the SHA-1+base64url digest of fp, used when the
// canonical fingerprint exceeds MaxCommonKeySize.
func hashedFingerprint(fp string) string {
	sum := sha1.Sum([]byte(fp))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// commonKey produces the portion of the cache key derived from params: the
// DefaultCacheKey constant when params is empty, the canonical fingerprint
// when it fits within MaxCommonKeySize, or its hash otherwise.
func (d *Deriver) commonKey(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return d.defaultCacheKey(), nil
	}

	fp, err := Fingerprint(params)
	if err != nil {
		return "", err
	}
	if d.MaxCommonKeySize > 0 && len(fp) > d.MaxCommonKeySize {
		return hashedFingerprint(fp), nil
	}
	return fp, nil
}

func (d *Deriver) defaultCacheKey() string {
	if d.DefaultCacheKey != "" {
		return d.DefaultCacheKey
	}
	return "DEFAULT_CACHE_KEY"
}

// CacheKey derives the full cache key for a request: adapter name (if set),
// endpoint name, transport name, and the common key, joined with "-". The
// transport name is always included, per the resolved reading of spec.md's
// open question on DEFAULT_CACHE_KEY composition.
func (d *Deriver) CacheKey(adapterName, endpoint, transport string, params map[string]interface{}) (string, error) {
	common, err := d.commonKey(params)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, 4)
	if adapterName != "" {
		parts = append(parts, adapterName)
	}
	parts = append(parts, endpoint, transport, common)
	return strings.Join(parts, "-"), nil
}

// FeedID derives the feed ID for subscription-set membership: the canonical
// fingerprint alone, without the adapter/endpoint/transport prefix CacheKey
// carries, since the same logical feed may be keyed by more than one cache
// key over its lifetime. Returns the "N/A" sentinel when params is empty —
// there is no meaningful feed identity to warm in the background for a
// parameterless request.
func (d *Deriver) FeedID(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return "N/A", nil
	}

	fp, err := Fingerprint(params)
	if err != nil {
		return "", err
	}
	if d.MaxCommonKeySize > 0 && len(fp) > d.MaxCommonKeySize {
		return hashedFingerprint(fp), nil
	}
	return fp, nil
}
