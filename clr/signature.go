package clr

import (
	"fmt"
	"strings"
)

// Signature is a parsed reflection signature such as
// "Void WriteLine(System.String)" or "Void .ctor(System.String)".
type Signature struct {
	Return string
	Name   string
	Params []string
	Raw    string
}

// primitive short names printed by MethodInfo.ToString.
var primitiveAliases = map[string]string{
	"Void":    "System.Void",
	"Boolean": "System.Boolean",
	"Char":    "System.Char",
	"SByte":   "System.SByte",
	"Byte":    "System.Byte",
	"Int16":   "System.Int16",
	"UInt16":  "System.UInt16",
	"Int32":   "System.Int32",
	"UInt32":  "System.UInt32",
	"Int64":   "System.Int64",
	"UInt64":  "System.UInt64",
	"Single":  "System.Single",
	"Double":  "System.Double",
	"IntPtr":  "System.IntPtr",
	"UIntPtr": "System.UIntPtr",
}

var valueTypes = map[string]bool{
	"System.Boolean":  true,
	"System.Char":     true,
	"System.SByte":    true,
	"System.Byte":     true,
	"System.Int16":    true,
	"System.UInt16":   true,
	"System.Int32":    true,
	"System.UInt32":   true,
	"System.Int64":    true,
	"System.UInt64":   true,
	"System.Single":   true,
	"System.Double":   true,
	"System.Decimal":  true,
	"System.IntPtr":   true,
	"System.UIntPtr":  true,
	"System.DateTime": true,
	"System.Guid":     true,
}

const byRefSuffix = " ByRef"

// ParseSignature parses the output of MethodInfo.ToString or
// ConstructorInfo.ToString.
func ParseSignature(s string) (Signature, error) {
	sig := Signature{Raw: s}
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return sig, fmt.Errorf("malformed signature %q", s)
	}
	head := strings.TrimSpace(s[:open])
	sp := lastTopLevelSpace(head)
	if sp < 0 {
		return sig, fmt.Errorf("malformed signature %q", s)
	}
	sig.Return = normalizeTypeName(head[:sp])
	sig.Name = head[sp+1:]
	if i := strings.IndexByte(sig.Name, '['); i >= 0 {
		// generic method definitions print as Name[T]
		sig.Name = sig.Name[:i]
	}

	params := strings.TrimSpace(s[open+1 : len(s)-1])
	if params == "" {
		return sig, nil
	}
	for _, p := range splitTopLevel(params) {
		p = strings.TrimSpace(p)
		if p == "" {
			return sig, fmt.Errorf("malformed parameter list in %q", s)
		}
		sig.Params = append(sig.Params, normalizeTypeName(p))
	}
	return sig, nil
}

// IsConstructor reports whether the signature names a constructor.
func (s Signature) IsConstructor() bool {
	return s.Name == ".ctor"
}

func (s Signature) String() string {
	if s.Raw != "" {
		return s.Raw
	}
	return fmt.Sprintf("%s %s(%s)", s.Return, s.Name, strings.Join(s.Params, ", "))
}

func lastTopLevelSpace(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ']':
			depth++
		case '[':
			depth--
		case ' ':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// normalizeTypeName expands primitive short names, keeping array and ByRef
// decorations.
func normalizeTypeName(t string) string {
	t = strings.TrimSpace(t)
	suffix := ""
	if strings.HasSuffix(t, byRefSuffix) {
		t, suffix = strings.TrimSuffix(t, byRefSuffix), byRefSuffix
	} else if strings.HasSuffix(t, "&") {
		t, suffix = strings.TrimSuffix(t, "&"), byRefSuffix
	}
	base, arr := t, ""
	for strings.HasSuffix(base, "[]") {
		base, arr = strings.TrimSuffix(base, "[]"), arr+"[]"
	}
	if full, ok := primitiveAliases[base]; ok {
		base = full
	}
	return base + arr + suffix
}

// Overload scores. Higher is more specific.
const (
	scoreIncompatible = -1
	scoreObject       = 1
	scoreClass        = 2
	scoreExact        = 3
)

// compatibility scores how well v fits a parameter of type param.
func compatibility(v Variant, param string) int {
	if strings.HasSuffix(param, byRefSuffix) {
		return scoreIncompatible
	}
	if param == "System.Object" {
		return scoreObject
	}
	switch v.Kind() {
	case KindEmpty:
		// null converts to any reference type
		if valueTypes[param] {
			return scoreIncompatible
		}
		return scoreObject
	case KindObject:
		if valueTypes[param] || param == "System.String" || strings.HasSuffix(param, "[]") {
			return scoreIncompatible
		}
		return scoreClass
	}
	if v.Kind().managedTypeName() == param {
		return scoreExact
	}
	return scoreIncompatible
}

// score returns the total score of args against sig, or scoreIncompatible.
func (s Signature) score(args []Variant) int {
	if len(args) != len(s.Params) {
		return scoreIncompatible
	}
	total := 0
	for i, a := range args {
		c := compatibility(a, s.Params[i])
		if c == scoreIncompatible {
			return scoreIncompatible
		}
		total += c
	}
	return total
}

// selectOverload returns the index of the single most specific candidate
// accepting args. It returns -1 and a description when there is no match or
// the best score is shared.
func selectOverload(candidates []Signature, args []Variant) (int, string) {
	best, bestScore, tied := -1, scoreIncompatible, false
	for i, c := range candidates {
		sc := c.score(args)
		switch {
		case sc == scoreIncompatible:
		case sc > bestScore:
			best, bestScore, tied = i, sc, false
		case sc == bestScore:
			tied = true
		}
	}
	if best < 0 {
		return -1, fmt.Sprintf("no overload accepts (%s)", describeArgs(args))
	}
	if tied {
		return -1, fmt.Sprintf("several overloads accept (%s)", describeArgs(args))
	}
	return best, ""
}

func describeArgs(args []Variant) string {
	kinds := make([]string, len(args))
	for i, a := range args {
		kinds[i] = a.Kind().String()
	}
	return strings.Join(kinds, ", ")
}
