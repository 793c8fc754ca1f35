package synth

import (
	"regexp"
	"strconv"
	"strings"

	"codeloop/internal/signature"
)

// ArgKind tags an inferred input domain.
type ArgKind int

const (
	ArgInt ArgKind = iota
	ArgString
	ArgIntSlice
	ArgNumberString // space-separated numbers in a string
	ArgFloat
	ArgBool
)

func (k ArgKind) String() string {
	switch k {
	case ArgInt:
		return "int"
	case ArgString:
		return "string"
	case ArgIntSlice:
		return "[]int"
	case ArgNumberString:
		return "number-string"
	case ArgFloat:
		return "float64"
	case ArgBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Literal returns a Go expression for a representative value.
func (k ArgKind) Literal() string {
	switch k {
	case ArgInt:
		return "10"
	case ArgString:
		return `"hello"`
	case ArgIntSlice:
		return "[]int{1, 2, 3}"
	case ArgNumberString:
		return `"1 2 3 4 5"`
	case ArgFloat:
		return "3.14"
	case ArgBool:
		return "true"
	default:
		return "10"
	}
}

// InferencePath records which evidence decided the input domain.
type InferencePath int

const (
	PathPattern InferencePath = iota
	PathBodyEvidence
	PathDeclaredType
	PathParamName
	PathTaskKeyword
	PathPairTable
	PathPlaceholder
	PathSmartFallback
	PathLastResort
	PathStructural
)

func (p InferencePath) String() string {
	switch p {
	case PathPattern:
		return "pattern"
	case PathBodyEvidence:
		return "body-evidence"
	case PathDeclaredType:
		return "declared-type"
	case PathParamName:
		return "param-name"
	case PathTaskKeyword:
		return "task-keyword"
	case PathPairTable:
		return "pair-table"
	case PathPlaceholder:
		return "placeholder"
	case PathSmartFallback:
		return "smart-fallback"
	case PathLastResort:
		return "last-resort"
	case PathStructural:
		return "structural"
	default:
		return "unknown"
	}
}

var sliceParamNames = map[string]bool{
	"numbers": true, "items": true, "values": true, "list": true,
	"arr": true, "slice": true, "nums": true, "data": true,
}

var stringParamNames = map[string]bool{
	"text": true, "s": true, "word": true, "name": true,
	"str": true, "sentence": true, "phrase": true, "email": true,
}

var intParamNames = map[string]bool{
	"n": true, "num": true, "x": true, "count": true,
	"limit": true, "number": true, "k": true,
}

// inferSingleArg decides the input domain of a one-parameter subject.
// Priority: body evidence, declared type, parameter name, task text.
func inferSingleArg(sig signature.Signature, source, taskLower string) (ArgKind, InferencePath) {
	p := sig.Params[0]

	if p.Name != "" && source != "" {
		if kind, ok := bodyEvidence(p.Name, source); ok {
			return kind, PathBodyEvidence
		}
	}

	if kind, ok := kindFromType(p.Type); ok {
		return kind, PathDeclaredType
	}

	lower := strings.ToLower(p.Name)
	switch {
	case sliceParamNames[lower]:
		return ArgIntSlice, PathParamName
	case stringParamNames[lower]:
		return ArgString, PathParamName
	case intParamNames[lower]:
		return ArgInt, PathParamName
	}

	return taskKeywordKind(taskLower), PathTaskKeyword
}

func kindFromType(typ string) (ArgKind, bool) {
	switch typ {
	case "int", "int64", "int32":
		return ArgInt, true
	case "string":
		return ArgString, true
	case "[]int", "[]int64":
		return ArgIntSlice, true
	case "float64", "float32":
		return ArgFloat, true
	case "bool":
		return ArgBool, true
	}
	return 0, false
}

// bodyEvidence scans the candidate body for how the parameter is
// actually used. Splitting idioms beat aggregate idioms beat string
// methods beat arithmetic, matching how decisive each is.
func bodyEvidence(param, source string) (ArgKind, bool) {
	esc := regexp.QuoteMeta(param)

	if regexp.MustCompile(`strings\.(Fields|Split)\(\s*`+esc+`\b`).MatchString(source) {
		return ArgNumberString, true
	}
	aggregates := []string{
		`len\(` + esc + `\)`,
		`range\s+` + esc + `\b`,
		`\b` + esc + `\[`,
		`sort\.\w+\(\s*` + esc + `\b`,
	}
	for _, pat := range aggregates {
		if regexp.MustCompile(pat).MatchString(source) {
			return ArgIntSlice, true
		}
	}
	if regexp.MustCompile(`strings\.\w+\(\s*`+esc+`\b`).MatchString(source) ||
		regexp.MustCompile(`\b`+esc+`\s*\+\s*"`).MatchString(source) {
		return ArgString, true
	}
	numeric := []string{
		`\b` + esc + `\s*%`,
		`\b` + esc + `\s*[<>]=?\s*\d`,
		`\b` + esc + `\s*[*/+-]\s*\d`,
		`\d\s*[*/+-]\s*` + esc + `\b`,
	}
	for _, pat := range numeric {
		if regexp.MustCompile(pat).MatchString(source) {
			return ArgInt, true
		}
	}
	return 0, false
}

func taskKeywordKind(taskLower string) ArgKind {
	intWords := []string{"prime", "factorial", "fibonacci", "number", "digit", "integer"}
	for _, kw := range intWords {
		if strings.Contains(taskLower, kw) {
			return ArgInt
		}
	}
	textWords := []string{"palindrome", "vowel", "string", "word", "text", "reverse", "letter"}
	for _, kw := range textWords {
		if strings.Contains(taskLower, kw) {
			return ArgString
		}
	}
	listWords := []string{"sort", "list", "largest", "smallest", "maximum", "minimum", "array"}
	for _, kw := range listWords {
		if strings.Contains(taskLower, kw) {
			return ArgIntSlice
		}
	}
	return ArgInt
}

// inferArgs produces a call-argument expression list for the subject,
// plus the path that selected it.
func inferArgs(sig signature.Signature, source, taskLower string) ([]string, InferencePath) {
	switch len(sig.Params) {
	case 0:
		return nil, PathPlaceholder
	case 1:
		kind, path := inferSingleArg(sig, source, taskLower)
		return []string{kind.Literal()}, path
	case 2:
		switch {
		case strings.Contains(taskLower, "gcd"), strings.Contains(taskLower, "lcm"),
			strings.Contains(taskLower, "common"):
			return []string{"12", "18"}, PathPairTable
		case strings.Contains(taskLower, "anagram"):
			return []string{`"listen"`, `"silent"`}, PathPairTable
		default:
			return []string{"2", "3"}, PathPairTable
		}
	default:
		args := make([]string, len(sig.Params))
		for i := range args {
			args[i] = strconv.Itoa(i + 1)
		}
		return args, PathPlaceholder
	}
}
