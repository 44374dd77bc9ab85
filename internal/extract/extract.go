// Package extract recovers structured records from reasoning
// collaborator text. The collaborator is asked for strict JSON but may
// wrap it in markdown fences or prose; extraction tries progressively
// looser recovery steps and degrades to a fully populated sentinel
// record rather than failing the caller.
package extract

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Sentinel fills every field of a fallback record.
const Sentinel = "parse error"

// Schema describes the record a stage expects. Only top level fields
// are declared here; nested shape checks belong to the caller's typed
// decode.
type Schema struct {
	Fields []Field
}

// Field is one expected top level key. Allowed, when non-empty,
// restricts the value to the listed strings.
type Field struct {
	Name     string
	Required bool
	Allowed  []string
}

// Result of one extraction. Record always holds one entry per schema
// field. Degraded marks the sentinel fallback path; callers must treat
// it as the reliable signal and never compare field values against
// Sentinel.
type Result struct {
	Record   map[string]any
	Degraded bool
	Failure  string
	RawText  string
}

var (
	labeledFenceRe = regexp.MustCompile("(?s)```[ \t]*(?:json|JSON)[ \t]*\n(.*?)```")
	anyFenceRe     = regexp.MustCompile("(?s)```[ \t]*\n(.*?)```")
)

// Extract recovers a record from raw collaborator text. Recovery steps,
// in order: labeled ```json fence, any fenced block, first balanced
// brace or bracket span, the whole text verbatim. The first step whose
// candidate parses as JSON wins; a parsed candidate that fails schema
// validation routes to the fallback rather than trying later steps.
func Extract(rawText string, schema Schema) Result {
	for _, candidate := range candidates(rawText) {
		var record map[string]any
		if err := json.Unmarshal([]byte(candidate), &record); err != nil {
			continue
		}
		if err := validate(record, schema); err != nil {
			log.Printf("extract schema_invalid err=%q", err)
			return fallback(rawText, schema, err.Error())
		}
		fillOptional(record, schema)
		return Result{Record: record, RawText: rawText}
	}
	log.Printf("extract parse_failed chars=%d", len(rawText))
	return fallback(rawText, schema, "no parseable structured block in response")
}

// DecodeInto re-marshals the record into a typed value. It refuses
// degraded records; callers construct typed fallbacks for those.
func (r Result) DecodeInto(out any) error {
	if r.Degraded {
		return fmt.Errorf("degraded record: %s", r.Failure)
	}
	blob, err := json.Marshal(r.Record)
	if err != nil {
		return fmt.Errorf("re-marshal record: %w", err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

func candidates(raw string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if m := labeledFenceRe.FindStringSubmatch(raw); m != nil {
		add(m[1])
	}
	if m := anyFenceRe.FindStringSubmatch(raw); m != nil {
		add(m[1])
	}
	add(balancedSpan(raw))
	add(raw)
	return out
}

// balancedSpan returns the first brace or bracket span whose delimiters
// balance, honoring JSON string literals and escapes.
func balancedSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func validate(record map[string]any, schema Schema) error {
	for _, f := range schema.Fields {
		v, ok := record[f.Name]
		if !ok || v == nil {
			if f.Required {
				return fmt.Errorf("missing required field %q", f.Name)
			}
			continue
		}
		if len(f.Allowed) == 0 {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string, got %T", f.Name, v)
		}
		allowed := false
		for _, a := range f.Allowed {
			if s == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("field %q has value %q outside %v", f.Name, s, f.Allowed)
		}
	}
	return nil
}

func fillOptional(record map[string]any, schema Schema) {
	for _, f := range schema.Fields {
		if _, ok := record[f.Name]; !ok {
			record[f.Name] = nil
		}
	}
}

func fallback(raw string, schema Schema, reason string) Result {
	record := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		record[f.Name] = Sentinel
	}
	return Result{Record: record, Degraded: true, Failure: reason, RawText: raw}
}
