package synth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rule maps a task-phrase pattern to a test template. Rules are kept
// in a single ordered table so the precedence invariant (specific
// before general) is visible and testable per rule.
type rule struct {
	name  string
	match func(taskLower string) bool
	build func(fn string) string
}

func anyOf(kws ...string) func(string) bool {
	return func(s string) bool {
		for _, kw := range kws {
			if strings.Contains(s, kw) {
				return true
			}
		}
		return false
	}
}

func allOf(kws ...string) func(string) bool {
	return func(s string) bool {
		for _, kw := range kws {
			if !strings.Contains(s, kw) {
				return false
			}
		}
		return true
	}
}

// builtinRules is the ordered pattern table. "prime factors" and
// "primes under N" must precede the bare prime-check match, and the
// anagram pair must precede the generic string rules.
var builtinRules = []rule{
	{
		name:  "prime-factors",
		match: allOf("prime", "factor"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "12", want: "[]int{2, 2, 3}", cmp: cmpIntSlice},
				{args: "13", want: "[]int{13}", cmp: cmpIntSlice},
				{args: "100", want: "[]int{2, 2, 5, 5}", cmp: cmpIntSlice},
			})
		},
	},
	{
		name: "primes-under-n",
		match: func(s string) bool {
			if !strings.Contains(s, "prime") {
				return false
			}
			return anyOf("under", "up to", "below", "less than", "list", "all prime")(s)
		},
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "10", want: "[]int{2, 3, 5, 7}", cmp: cmpIntSlice},
				{args: "2", want: "[]int{}", cmp: cmpIntSlice},
			})
		},
	},
	{
		name:  "prime-check",
		match: anyOf("prime"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "7", want: "true", cmp: cmpEq},
				{args: "2", want: "true", cmp: cmpEq},
				{args: "11", want: "true", cmp: cmpEq},
				{args: "4", want: "false", cmp: cmpEq},
				{args: "1", want: "false", cmp: cmpEq},
				{args: "9", want: "false", cmp: cmpEq},
			})
		},
	},
	{
		name:  "factorial",
		match: anyOf("factorial"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "0", want: "1", cmp: cmpEq},
				{args: "1", want: "1", cmp: cmpEq},
				{args: "5", want: "120", cmp: cmpEq},
			})
		},
	},
	{
		name:  "fibonacci",
		match: anyOf("fibonacci", "fib "),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "0", want: "0", cmp: cmpEq},
				{args: "1", want: "1", cmp: cmpEq},
				{args: "10", want: "55", cmp: cmpEq},
			})
		},
	},
	{
		name:  "palindrome",
		match: anyOf("palindrome"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: `"radar"`, want: "true", cmp: cmpEq},
				{args: `"level"`, want: "true", cmp: cmpEq},
				{args: `"hello"`, want: "false", cmp: cmpEq},
			})
		},
	},
	{
		name:  "vowel-count",
		match: allOf("vowel"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: `"hello"`, want: "2", cmp: cmpEq},
				{args: `"aeiou"`, want: "5", cmp: cmpEq},
				{args: `"xyz"`, want: "0", cmp: cmpEq},
			})
		},
	},
	{
		name:  "anagram",
		match: anyOf("anagram"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: `"listen", "silent"`, want: "true", cmp: cmpEq},
				{args: `"hello", "world"`, want: "false", cmp: cmpEq},
			})
		},
	},
	{
		name:  "gcd",
		match: anyOf("gcd", "greatest common"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "12, 18", want: "6", cmp: cmpEq},
				{args: "5, 10", want: "5", cmp: cmpEq},
				{args: "7, 13", want: "1", cmp: cmpEq},
			})
		},
	},
	{
		name:  "lcm",
		match: anyOf("lcm", "least common", "lowest common"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "12, 18", want: "36", cmp: cmpEq},
				{args: "5, 10", want: "10", cmp: cmpEq},
				{args: "3, 7", want: "21", cmp: cmpEq},
			})
		},
	},
	{
		name:  "sort",
		match: anyOf("sort"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "[]int{5, 2, 8, 1, 9}", want: "[]int{1, 2, 5, 8, 9}", cmp: cmpIntSlice},
				{args: "[]int{1}", want: "[]int{1}", cmp: cmpIntSlice},
			})
		},
	},
	{
		name:  "max",
		match: anyOf("largest", "maximum", "biggest", "highest", "max "),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "[]int{3, 1, 4, 1, 5, 9, 2, 6}", want: "9", cmp: cmpEq},
				{args: "[]int{-5, -2, -9}", want: "-2", cmp: cmpEq},
			})
		},
	},
	{
		name:  "min",
		match: anyOf("smallest", "minimum", "lowest", "min "),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: "[]int{3, 1, 4, 1, 5, 9, 2, 6}", want: "1", cmp: cmpEq},
				{args: "[]int{-5, -2, -9}", want: "-9", cmp: cmpEq},
			})
		},
	},
	{
		name:  "reverse-string",
		match: allOf("reverse"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: `"hello"`, want: `"olleh"`, cmp: cmpEq},
				{args: `"a"`, want: `"a"`, cmp: cmpEq},
				{args: `""`, want: `""`, cmp: cmpEq},
			})
		},
	},
	{
		name:  "balanced-brackets",
		match: anyOf("balanced", "parenthes", "bracket"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: `"()"`, want: "true", cmp: cmpEq},
				{args: `"()[]{}"`, want: "true", cmp: cmpEq},
				{args: `"(()"`, want: "false", cmp: cmpEq},
				{args: `")("`, want: "false", cmp: cmpEq},
			})
		},
	},
	{
		name:  "email-validator",
		match: anyOf("email"),
		build: func(fn string) string {
			return caseTable(fn, []testCase{
				{args: `"test@example.com"`, want: "true", cmp: cmpEq},
				{args: `"invalid-email"`, want: "false", cmp: cmpEq},
				{args: `"@nouser.com"`, want: "false", cmp: cmpEq},
			})
		},
	},
}

type cmpKind int

const (
	cmpEq cmpKind = iota
	cmpIntSlice
)

type testCase struct {
	args string
	want string
	cmp  cmpKind
}

// caseTable renders a runTests body asserting exact values for each
// case. Panics in the candidate are converted to test errors.
func caseTable(fn string, cases []testCase) string {
	var b strings.Builder
	b.WriteString("func runTests() (err error) {\n")
	b.WriteString("\tdefer func() {\n")
	b.WriteString("\t\tif r := recover(); r != nil {\n")
	b.WriteString("\t\t\terr = fmt.Errorf(\"candidate panicked: %v\", r)\n")
	b.WriteString("\t\t}\n")
	b.WriteString("\t}()\n")
	needSliceHelper := false
	for i, c := range cases {
		got := fmt.Sprintf("got%d", i+1)
		fmt.Fprintf(&b, "\t%s := %s(%s)\n", got, fn, c.args)
		switch c.cmp {
		case cmpIntSlice:
			needSliceHelper = true
			fmt.Fprintf(&b, "\tif !eqIntSlice(%s, %s) {\n", got, c.want)
		default:
			fmt.Fprintf(&b, "\tif %s != %s {\n", got, c.want)
		}
		fmt.Fprintf(&b, "\t\treturn fmt.Errorf(\"%s(%s) = %%v, want %s\", %s)\n",
			fn, escapePercent(c.args), escapePercent(c.want), got)
		b.WriteString("\t}\n")
	}
	b.WriteString("\treturn nil\n")
	b.WriteString("}\n")
	if needSliceHelper {
		b.WriteString(sliceHelper)
	}
	return b.String()
}

func escapePercent(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	return strings.ReplaceAll(s, `"`, `\"`)
}

const sliceHelper = `
func eqIntSlice(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
`

// ============================================================================
// USER-EXTENSIBLE RULES
// ============================================================================

// userRule is the YAML shape for externally supplied patterns. The
// template is raw test source with %FUNC% standing for the subject
// name; it must define runTests.
type userRule struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords"`
	RequireAll bool     `yaml:"require_all"`
	Template   string   `yaml:"template"`
}

type rulesFile struct {
	Rules []userRule `yaml:"rules"`
}

// loadUserRules reads extra rules from a YAML file. They are appended
// after the built-in table, so built-ins always win on overlap.
func loadUserRules(path string) ([]rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	var rules []rule
	for _, ur := range rf.Rules {
		if ur.Name == "" || len(ur.Keywords) == 0 || !strings.Contains(ur.Template, "runTests") {
			continue
		}
		match := anyOf(ur.Keywords...)
		if ur.RequireAll {
			match = allOf(ur.Keywords...)
		}
		tmpl := ur.Template
		rules = append(rules, rule{
			name:  ur.Name,
			match: match,
			build: func(fn string) string {
				return strings.ReplaceAll(tmpl, "%FUNC%", fn)
			},
		})
	}
	return rules, nil
}
