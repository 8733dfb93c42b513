package geo

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// The target service answers JSONP-style: a comment-prefixed callback
// wrapper around a deeply nested, position-significant array structure.
// Nothing about the shape is documented; the indexes below were recovered
// by inspection and break whenever the service feels like it.

// ErrNoCoordinates is returned when no plausible coordinate pair can be
// found anywhere in a parsed payload.
var ErrNoCoordinates = errors.New("no coordinate pair found in payload")

// StripJSONP removes the `/**/callbackName(...)` envelope if present and
// returns the inner text. The second return reports whether an envelope
// was found.
func StripJSONP(body string) (string, bool) {
	s := strings.TrimSpace(body)
	if strings.HasPrefix(s, "/**/") {
		s = strings.TrimSpace(s[len("/**/"):])
	} else if !strings.Contains(s[:min(len(s), 64)], "(") {
		return body, false
	}
	open := strings.Index(s, "(")
	if open <= 0 {
		return body, false
	}
	name := s[:open]
	// Callback names are identifier-ish; anything else means this is not
	// an envelope (e.g. a raw JSON array starting with "[").
	for _, r := range name {
		if r != '_' && r != '.' && r != '$' && !isAlnum(r) {
			return body, false
		}
	}
	close_ := strings.LastIndex(s, ")")
	if close_ <= open {
		return body, false
	}
	return s[open+1 : close_], true
}

// ParsePayload decodes a captured response body. Order of attempts:
// envelope strip + JSON, raw JSON, and finally a scan for the first
// top-level array literal in the text.
func ParsePayload(body string) (any, error) {
	if inner, ok := StripJSONP(body); ok {
		var v any
		if err := json.Unmarshal([]byte(inner), &v); err == nil {
			return v, nil
		}
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err == nil {
		return v, nil
	}
	if lit, ok := ScanArrayLiteral(body); ok {
		var v any
		if err := json.Unmarshal([]byte(lit), &v); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("payload is not parseable as JSON (%d bytes)", len(body))
}

// ScanArrayLiteral finds the first top-level `[...]` literal in raw text,
// tracking string context so brackets inside strings do not confuse the
// depth count.
func ScanArrayLiteral(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			// Track quoting from the very first byte: a bracket inside a
			// quoted prefix must not be mistaken for the literal's start.
			inString = true
		case '[':
			if start < 0 {
				start = i
			}
			depth++
		case ']':
			if start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// ExtractFixed pulls the coordinate pair from the known nested-array
// position. It fails as soon as any index is missing; deep search is the
// network inspector's job, not this layer's.
func ExtractFixed(v any) (lat, lon float64, err error) {
	node, err := walk(v, 1, 0, 5, 0, 1, 0, 1)
	if err != nil {
		return 0, 0, err
	}
	arr, ok := node.([]any)
	if !ok || len(arr) < 4 {
		return 0, 0, ErrNoCoordinates
	}
	lat, ok1 := arr[2].(float64)
	lon, ok2 := arr[3].(float64)
	if !ok1 || !ok2 || !ValidLatLon(lat, lon) {
		return 0, 0, ErrNoCoordinates
	}
	return lat, lon, nil
}

func walk(v any, indexes ...int) (any, error) {
	node := v
	for _, idx := range indexes {
		arr, ok := node.([]any)
		if !ok || idx >= len(arr) {
			return nil, ErrNoCoordinates
		}
		node = arr[idx]
	}
	return node, nil
}

// DeepSearchCoords scans the whole structure depth-first for the first
// array of length >= 4 whose elements at indexes 2 and 3 are both numbers
// inside valid latitude/longitude range. Deliberately more tolerant than
// ExtractFixed; this is the fallback-of-last-resort data source.
func DeepSearchCoords(v any) (lat, lon float64, err error) {
	if lat, lon, ok := deepCoords(v); ok {
		return lat, lon, nil
	}
	return 0, 0, ErrNoCoordinates
}

func deepCoords(v any) (float64, float64, bool) {
	switch node := v.(type) {
	case []any:
		if len(node) >= 4 {
			lat, ok1 := node[2].(float64)
			lon, ok2 := node[3].(float64)
			if ok1 && ok2 && ValidLatLon(lat, lon) {
				return lat, lon, true
			}
		}
		for _, child := range node {
			if lat, lon, ok := deepCoords(child); ok {
				return lat, lon, true
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if lat, lon, ok := deepCoords(node[k]); ok {
				return lat, lon, true
			}
		}
	}
	return 0, 0, false
}

// PlaceCandidate is a [text, languageCode] pair found during deep search.
type PlaceCandidate struct {
	Text     string
	Language string
}

// DeepSearchPlace scans for 2-element [text, langCode] arrays that look
// like a place label and picks the best one: preferred language first,
// then text length closest to targetLen. Returns nil when nothing
// qualifies.
func DeepSearchPlace(v any, langPriority []string, targetLen int) *PlaceCandidate {
	var best *PlaceCandidate
	bestScore := 0
	deepPlaces(v, func(c PlaceCandidate) {
		score := placeScore(c, langPriority, targetLen)
		if best == nil || score < bestScore {
			cand := c
			best = &cand
			bestScore = score
		}
	})
	return best
}

func deepPlaces(v any, visit func(PlaceCandidate)) {
	switch node := v.(type) {
	case []any:
		if len(node) == 2 {
			if text, ok := node[0].(string); ok {
				if lang, ok := node[1].(string); ok && looksLikePlace(text, lang) {
					visit(PlaceCandidate{Text: text, Language: lang})
				}
			}
		}
		for _, child := range node {
			deepPlaces(child, visit)
		}
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			deepPlaces(node[k], visit)
		}
	}
}

func looksLikePlace(text, lang string) bool {
	if len(text) < 3 || len(lang) > 5 {
		return false
	}
	if !strings.ContainsAny(text, ", \t") {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "copyright") || strings.Contains(text, "©") || strings.Contains(lower, "(c)") {
		return false
	}
	return true
}

func placeScore(c PlaceCandidate, langPriority []string, targetLen int) int {
	rank := len(langPriority)
	for i, l := range langPriority {
		if strings.EqualFold(c.Language, l) {
			rank = i
			break
		}
	}
	diff := len(c.Text) - targetLen
	if diff < 0 {
		diff = -diff
	}
	return rank*100 + diff
}

// DecodeBody turns a transport body into text: base64 decode when the
// transport says the body is encoded, with a raw fallback when the decode
// fails or the result is not UTF-8 (the odd mislabeled response).
func DecodeBody(body string, base64Encoded bool) string {
	if !base64Encoded {
		return body
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return body
	}
	if !utf8.Valid(decoded) {
		return body
	}
	return string(decoded)
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
