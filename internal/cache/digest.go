package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Digest returns the secondary hash of an input payload: sha256 over its
// canonical JSON form with every string NFC-normalized and trimmed, so
// inputs that differ only in key order, Unicode composition or surrounding
// whitespace hash the same.
func Digest(input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode input: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("decode input: %w", err)
	}
	canonical, err := json.Marshal(normalizeValue(generic))
	if err != nil {
		return "", fmt.Errorf("encode canonical input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func normalizeString(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// normalizeValue rewrites strings inside decoded JSON. encoding/json sorts
// map keys on output, which gives the canonical ordering.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return normalizeString(t)
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[normalizeString(k)] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
