// Package imports extracts module specifiers from JavaScript/TypeScript
// source and classifies them as relative, builtin, installed, or missing.
// It understands syntax only; it never executes or type-checks code.
package imports

import (
	"regexp"
	"strings"
)

// Specifier extraction handles four forms:
//
//	import x from 'pkg'      (ES import with binding)
//	import 'pkg'             (bare ES import)
//	require('pkg')           (CommonJS)
//	import('pkg')            (dynamic import)
//
// Statements inside // or /* */ comments are excluded.
var (
	importFromRe  = regexp.MustCompile(`(?m)\bimport\s+[^'"();]*?\bfrom\s*['"]([^'"]+)['"]`)
	bareImportRe  = regexp.MustCompile(`(?m)\bimport\s*['"]([^'"]+)['"]`)
	requireRe     = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	dynamicImpRe  = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	specifierRegs = []*regexp.Regexp{importFromRe, bareImportRe, requireRe, dynamicImpRe}
)

// ExtractSpecifiers returns every module specifier imported by code, in
// first-appearance order, deduplicated. Comment bodies are stripped before
// matching.
func ExtractSpecifiers(code string) []string {
	stripped := stripComments(code)

	seen := make(map[string]bool)
	var specs []string
	for _, re := range specifierRegs {
		for _, match := range re.FindAllStringSubmatch(stripped, -1) {
			spec := match[1]
			if spec == "" || seen[spec] {
				continue
			}
			seen[spec] = true
			specs = append(specs, spec)
		}
	}
	return specs
}

// stripComments blanks out // line comments and /* */ block comments while
// preserving string and template literals, so an import inside a string
// survives and an import inside a comment does not. Blanking (rather than
// deleting) keeps surrounding tokens separated.
func stripComments(code string) string {
	var out strings.Builder
	out.Grow(len(code))

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateSingleQuote
		stateDoubleQuote
		stateTemplate
	)

	state := stateCode
	for i := 0; i < len(code); i++ {
		c := code[i]
		var next byte
		if i+1 < len(code) {
			next = code[i+1]
		}

		switch state {
		case stateCode:
			switch {
			case c == '/' && next == '/':
				state = stateLineComment
				out.WriteByte(' ')
				out.WriteByte(' ')
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				out.WriteByte(' ')
				out.WriteByte(' ')
				i++
			case c == '\'':
				state = stateSingleQuote
				out.WriteByte(c)
			case c == '"':
				state = stateDoubleQuote
				out.WriteByte(c)
			case c == '`':
				state = stateTemplate
				out.WriteByte(c)
			default:
				out.WriteByte(c)
			}

		case stateLineComment:
			if c == '\n' {
				state = stateCode
				out.WriteByte(c)
			} else {
				out.WriteByte(' ')
			}

		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateCode
				out.WriteByte(' ')
				out.WriteByte(' ')
				i++
			} else if c == '\n' {
				out.WriteByte(c)
			} else {
				out.WriteByte(' ')
			}

		case stateSingleQuote:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(code) {
				out.WriteByte(next)
				i++
			} else if c == '\'' || c == '\n' {
				state = stateCode
			}

		case stateDoubleQuote:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(code) {
				out.WriteByte(next)
				i++
			} else if c == '"' || c == '\n' {
				state = stateCode
			}

		case stateTemplate:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(code) {
				out.WriteByte(next)
				i++
			} else if c == '`' {
				state = stateCode
			}
		}
	}

	return out.String()
}

// TopLevelPackage reduces a specifier to its package identity: the scope
// plus name for scoped packages, the first path segment otherwise.
// "pkg/subpath" → "pkg", "@scope/pkg/deep" → "@scope/pkg".
func TopLevelPackage(spec string) string {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}
