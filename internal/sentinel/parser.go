// Package sentinel statically compiles the benchmark task manifest from the
// UI's route registry source, so the benchmark and the front-end share one
// source of truth.
package sentinel

import (
	"regexp"
	"strconv"
	"strings"
)

// fieldValue is one parsed route field. Exactly one of the kind-specific
// members is meaningful.
type fieldValue struct {
	kind  valueKind
	str   string
	num   float64
	boolv bool
	list  []string
}

type valueKind int

const (
	kindString valueKind = iota
	kindIdent
	kindNumber
	kindBool
	kindList
)

// routeRecord is one brace-delimited object from the registry.
type routeRecord struct {
	fields map[string]fieldValue
}

func (r routeRecord) str(key string) string {
	if v, ok := r.fields[key]; ok && v.kind == kindString {
		return v.str
	}
	return ""
}

func (r routeRecord) ident(key string) (string, bool) {
	v, ok := r.fields[key]
	if !ok || v.kind != kindIdent {
		return "", false
	}
	return v.str, true
}

func (r routeRecord) list(key string) []string {
	if v, ok := r.fields[key]; ok && v.kind == kindList {
		return v.list
	}
	return nil
}

func (r routeRecord) number(key string) (float64, bool) {
	v, ok := r.fields[key]
	if !ok || v.kind != kindNumber {
		return 0, false
	}
	return v.num, true
}

func (r routeRecord) boolean(key string) (bool, bool) {
	v, ok := r.fields[key]
	if !ok || v.kind != kindBool {
		return false, false
	}
	return v.boolv, true
}

func (r routeRecord) hasTag(tag string) bool {
	for _, t := range r.list("tags") {
		if t == tag {
			return true
		}
	}
	return false
}

var fieldRe = regexp.MustCompile(`(?m)^\s*([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.+?),?\s*$`)

// parseRoutes extracts every top-level brace-delimited record that carries an
// "id" field from the registry source. Nested braces inside a record (inline
// objects, JSX) are balanced over but their contents are ignored.
func parseRoutes(src string) []routeRecord {
	var records []routeRecord
	for _, block := range topLevelBlocks(src) {
		rec := parseRecord(block)
		if _, ok := rec.fields["id"]; ok {
			records = append(records, rec)
		}
	}
	return records
}

// topLevelBlocks returns the text inside each balanced outermost {...} pair.
func topLevelBlocks(src string) []string {
	var blocks []string
	depth := 0
	start := -1
	inString := byte(0)

	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inString = c
		case '{':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				blocks = append(blocks, src[start:i])
				start = -1
			}
		}
	}
	return blocks
}

func parseRecord(block string) routeRecord {
	rec := routeRecord{fields: map[string]fieldValue{}}

	// Strip nested object bodies so their fields do not leak into this
	// record's namespace.
	flat := stripNested(block)

	for _, m := range fieldRe.FindAllStringSubmatch(flat, -1) {
		key := m[1]
		raw := strings.TrimSpace(strings.TrimSuffix(m[2], ","))
		if v, ok := parseValue(raw); ok {
			rec.fields[key] = v
		}
	}
	return rec
}

// stripNested blanks out the interiors of nested braces and brackets that are
// not simple string arrays.
func stripNested(block string) string {
	var b strings.Builder
	depth := 0
	inString := byte(0)
	for i := 0; i < len(block); i++ {
		c := block[i]
		if inString != 0 {
			if depth == 0 {
				b.WriteByte(c)
			}
			if c == '\\' {
				i++
				if depth == 0 && i < len(block) {
					b.WriteByte(block[i])
				}
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inString = c
			if depth == 0 {
				b.WriteByte(c)
			}
		case '{':
			depth++
		case '}':
			depth--
		default:
			if depth == 0 {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func parseValue(raw string) (fieldValue, bool) {
	switch {
	case raw == "":
		return fieldValue{}, false
	case raw == "null" || raw == "undefined":
		return fieldValue{}, false
	case raw == "true":
		return fieldValue{kind: kindBool, boolv: true}, true
	case raw == "false":
		return fieldValue{kind: kindBool, boolv: false}, true
	case raw[0] == '"' || raw[0] == '\'':
		return fieldValue{kind: kindString, str: unquote(raw)}, true
	case raw[0] == '[':
		return fieldValue{kind: kindList, list: parseStringList(raw)}, true
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return fieldValue{kind: kindNumber, num: n}, true
	}
	if identRe.MatchString(raw) {
		return fieldValue{kind: kindIdent, str: raw}, true
	}
	return fieldValue{}, false
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

var quotedRe = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

func parseStringList(raw string) []string {
	var out []string
	for _, m := range quotedRe.FindAllStringSubmatch(raw, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	return out
}

func unquote(raw string) string {
	if len(raw) >= 2 {
		q := raw[0]
		if (q == '"' || q == '\'') && raw[len(raw)-1] == q {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}
