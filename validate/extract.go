// Package validate turns raw model output into trusted structured data: JSON
// extraction from noisy text, schema validation, consistency checks against
// the source context, and the fallback policy that reacts to each failure
// class.
package validate

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Error kinds that cross component boundaries.
const (
	KindDecodeError       = "decode_error"
	KindNoJSONCandidate   = "no_json_candidate"
	KindSchemaFailure     = "schema_failure"
	KindMissingField      = "missing_field"
	KindTypeMismatch      = "type_mismatch"
	KindEnumMismatch      = "enum_mismatch"
	KindValidationError   = "validation_error"
	KindConsistencyFailed = "consistency_failed"
	KindOOM               = "oom"
	KindTimeout           = "timeout"
	KindTransportError    = "transport_error"
)

// BaseKind strips a detail suffix from an error kind, so "decode_error:EOF"
// classifies as "decode_error".
func BaseKind(kind string) string {
	base, _, _ := strings.Cut(kind, ":")
	return base
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?i:json)?\\s*\\n?(.*?)```")
	braceSpanRe   = regexp.MustCompile(`(?s)\{.*\}`)
)

// Extract locates and parses the first JSON value in model output. Fenced
// code blocks take priority: when any fence exists, bare-brace spans are not
// considered. The returned error kind is empty on success, "decode_error:"
// plus the first parse failure when candidates existed, or
// "no_json_candidate" when none did.
func Extract(text string) (any, string) {
	candidates := candidateSpans(text)
	if len(candidates) == 0 {
		return nil, KindNoJSONCandidate
	}

	firstErr := ""
	for _, candidate := range candidates {
		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		return value, ""
	}
	return nil, KindDecodeError + ":" + firstErr
}

func candidateSpans(text string) []string {
	var candidates []string
	for _, match := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, strings.TrimSpace(match[1]))
	}
	if len(candidates) > 0 {
		return candidates
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return []string{trimmed}
	}

	return braceSpanRe.FindAllString(text, -1)
}
