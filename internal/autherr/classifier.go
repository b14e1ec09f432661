// Package autherr classifies auth provider errors to decide recovery action:
// wipe local credentials or only surface a message.
package autherr

import (
	"sort"
	"strings"
)

// LoopDetectedMessage is the synthetic raw message raised when the
// synchronizer breaks an event loop. It matches the credential rules below so
// loop recovery always wipes local artifacts.
const LoopDetectedMessage = "authentication loop detected: verify credentials"

// credentialPatterns are lowercase substrings of provider errors that mean the
// locally held session material itself is invalid. Matching is
// case-insensitive substring, not exact.
var credentialPatterns = []string{
	"invalid api key",
	"invalid_grant",
	"jwt expired",
	"refresh token not found",
	"invalid token lifetime",
	"invalid signature",
	"loop detected",
}

// Classification is the recovery decision for a raw provider error.
type Classification struct {
	// CredentialIssue is true when local session artifacts must be wiped
	// before clearing identity.
	CredentialIssue bool
	// DisplayMessage is human-readable; translated when a rule matches, the
	// raw message verbatim otherwise.
	DisplayMessage string
}

// Classifier maps raw provider errors to a Classification. Translations are
// supplied by the application layer as pattern → localized message; the core
// ships no display strings of its own.
type Classifier struct {
	translations map[string]string
	patterns     []string // sorted translation keys, for deterministic lookup
}

// NewClassifier returns a Classifier using the given translation table. Keys
// are lowercase substrings of raw provider messages. A nil table is valid and
// falls back to raw messages.
func NewClassifier(translations map[string]string) *Classifier {
	patterns := make([]string, 0, len(translations))
	for k := range translations {
		patterns = append(patterns, k)
	}
	sort.Strings(patterns)
	return &Classifier{translations: translations, patterns: patterns}
}

// Classify inspects raw and returns the recovery decision.
func (c *Classifier) Classify(raw string) Classification {
	lower := strings.ToLower(raw)

	out := Classification{DisplayMessage: raw}
	for _, pattern := range c.patterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			out.DisplayMessage = c.translations[pattern]
			break
		}
	}
	for _, pattern := range credentialPatterns {
		if strings.Contains(lower, pattern) {
			out.CredentialIssue = true
			break
		}
	}
	return out
}
