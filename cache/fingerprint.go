// Package cache implements the LLM response cache: request
// fingerprinting, temperature-aware TTL, LRU-by-last-use eviction, and
// hit/token/cost accounting.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Message is the minimal shape fingerprinting needs: role and content.
// llm.ToCacheMessage projects an llm.Message into this shape.
type Message struct {
	Role    string
	Content string
}

// FingerprintInput is everything the cache_key formula consumes.
type FingerprintInput struct {
	Provider    string
	Model       string
	Temperature *float64 // nil means "unspecified", omitted from the key
	MaxTokens   *int      // nil means "unspecified", omitted from the key
	Messages    []Message
}

// PromptHash is SHA256 over the messages alone, distinct from
// CacheKey, which covers the full request fingerprint.
func PromptHash(messages []Message) string {
	h := sha256.New()
	for _, m := range messages {
		fmt.Fprintf(h, "%s:%s\n", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey computes the full request fingerprint. Optional params are
// omitted from the key when absent, not defaulted: this is why
// temperature/max_tokens are pointers rather than zero values.
func CacheKey(in FingerprintInput) string {
	var b strings.Builder
	b.WriteString(in.Provider)
	b.WriteString("::")
	b.WriteString(in.Model)
	b.WriteString("::")
	if in.Temperature != nil {
		fmt.Fprintf(&b, "temp:%v", *in.Temperature)
	}
	b.WriteString("::")
	if in.MaxTokens != nil {
		fmt.Fprintf(&b, "max_tokens:%d", *in.MaxTokens)
	}
	b.WriteString("::")
	for _, m := range in.Messages {
		fmt.Fprintf(&b, "%s:%s\n", m.Role, m.Content)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// TTLFor implements the temperature-aware TTL rule: temperature==0.0
// caches for 7 days (deterministic requests), anything else (including
// unset) caches for 1 hour.
func TTLFor(temperature *float64) time.Duration {
	if temperature != nil && *temperature == 0.0 {
		return 7 * 24 * time.Hour
	}
	return time.Hour
}
