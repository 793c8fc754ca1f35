// Package synth builds test source for a candidate without a
// human-authored oracle. Common task families get exact-value
// assertions from an ordered pattern table; everything else gets a
// type-appropriate smoke test derived from whatever evidence the
// signature and body offer.
package synth

import (
	"fmt"
	"strings"

	"codeloop/internal/logging"
	"codeloop/internal/signature"
	"codeloop/internal/task"
)

// Suite is synthesized test source plus the manifest of how it was
// derived. The source defines runTests() and any helpers it needs; it
// is compiled into the same unit as the candidate.
type Suite struct {
	Source     string
	Path       InferencePath
	RuleName   string
	Args       []string
	Structural bool
}

// Synthesizer turns (task, signature, candidate) into a Suite.
type Synthesizer struct {
	rules []rule
}

// New creates a synthesizer with the built-in rule table. rulesPath
// may name a YAML file of extra rules appended after the built-ins;
// a missing or malformed file is logged and ignored.
func New(rulesPath string) *Synthesizer {
	s := &Synthesizer{rules: builtinRules}
	if rulesPath != "" {
		extra, err := loadUserRules(rulesPath)
		if err != nil {
			logging.Get(logging.CategorySynth).Warn("ignoring rules file %s: %v", rulesPath, err)
		} else {
			s.rules = append(append([]rule{}, builtinRules...), extra...)
			logging.Synth("loaded %d extra rules from %s", len(extra), rulesPath)
		}
	}
	return s
}

// Synthesize produces a test suite for the candidate. It never fails:
// when nothing matches and no type evidence exists, the suite degrades
// to a does-not-panic check.
func (s *Synthesizer) Synthesize(t task.Task, sig signature.Signature, source string) Suite {
	log := logging.Get(logging.CategorySynth)

	if t.IsModification() {
		suite := structuralSuite(t, source)
		log.Info("structural suite for modification task %s", t.ID)
		return suite
	}

	taskLower := strings.ToLower(t.Description)

	if sig.IsUnknown() {
		in := task.DetectIntent(t.Description)
		if in.WantsLoop || in.Interactive {
			// Interactive candidates keep their logic in main, which
			// never runs in the sandbox; shape is what is testable.
			suite := structuralSuite(t, source)
			log.Info("structural suite for interactive task %s", t.ID)
			return suite
		}
		// Nothing callable was found; the suite itself becomes the
		// feedback driving the next attempt.
		log.Info("unknown signature for task %s", t.ID)
		return Suite{
			Source: "func runTests() error {\n" +
				"\treturn fmt.Errorf(\"no testable function found in the candidate\")\n" +
				"}\n",
			Path: PathLastResort,
		}
	}

	args, path := inferArgs(sig, source, taskLower)

	for _, r := range s.rules {
		if r.match(taskLower) {
			log.Info("rule %q matched for %q", r.name, sig.Name)
			return Suite{
				Source:   r.build(sig.Name),
				Path:     PathPattern,
				RuleName: r.name,
				Args:     args,
			}
		}
	}

	suite := smartFallback(sig, source, args)
	suite.Args = args
	if suite.Path == PathLastResort {
		log.Info("last-resort suite for %q", sig.Name)
	} else {
		suite.Path = path
		log.Info("smart fallback for %q via %s", sig.Name, path)
	}
	return suite
}

// returnEvidence classifies what the subject appears to return, from
// the declared result type when present, else from body idioms.
func returnEvidence(sig signature.Signature, source string) ArgKind {
	switch {
	case strings.HasPrefix(sig.ReturnType, "[]"):
		return ArgIntSlice
	case sig.ReturnType == "bool":
		return ArgBool
	case sig.ReturnType == "string":
		return ArgString
	case sig.ReturnType == "int" || sig.ReturnType == "int64" ||
		sig.ReturnType == "float64":
		return ArgInt
	}

	body := subjectBody(sig.Name, source)
	switch {
	case strings.Contains(body, "return []") ||
		(strings.Contains(body, "append(") && strings.Contains(body, "return ")):
		return ArgIntSlice
	case strings.Contains(body, "return true") || strings.Contains(body, "return false"):
		return ArgBool
	case strings.Contains(body, `return "`) || strings.Contains(body, "return fmt.Sprintf"):
		return ArgString
	}
	return -1
}

// subjectBody slices out the named function's text, or the whole
// source when the boundaries cannot be found.
func subjectBody(name, source string) string {
	idx := strings.Index(source, "func "+name)
	if idx < 0 {
		return source
	}
	rest := source[idx:]
	if end := strings.Index(rest, "\nfunc "); end > 0 {
		return rest[:end]
	}
	return rest
}

// smartFallback emits a smoke test keyed to the return-type evidence:
// non-nil for slices, non-empty for strings, call-completes otherwise.
func smartFallback(sig signature.Signature, source string, args []string) Suite {
	call := fmt.Sprintf("%s(%s)", sig.Name, strings.Join(args, ", "))

	var b strings.Builder
	b.WriteString("func runTests() (err error) {\n")
	b.WriteString("\tdefer func() {\n")
	b.WriteString("\t\tif r := recover(); r != nil {\n")
	b.WriteString("\t\t\terr = fmt.Errorf(\"candidate panicked: %v\", r)\n")
	b.WriteString("\t\t}\n")
	b.WriteString("\t}()\n")

	path := PathSmartFallback
	multi := strings.HasPrefix(sig.ReturnType, "(")
	if sig.IsUnknown() || multi || sig.ReturnType == "" && returnEvidence(sig, source) == -1 {
		// No usable type evidence: assert only that the call completes.
		fmt.Fprintf(&b, "\t%s\n", call)
		path = PathLastResort
	} else {
		switch returnEvidence(sig, source) {
		case ArgIntSlice:
			fmt.Fprintf(&b, "\tgot := %s\n", call)
			b.WriteString("\tif got == nil {\n")
			fmt.Fprintf(&b, "\t\treturn fmt.Errorf(\"%s returned nil\")\n", sig.Name)
			b.WriteString("\t}\n")
		case ArgString:
			fmt.Fprintf(&b, "\tgot := %s\n", call)
			b.WriteString("\tif got == \"\" {\n")
			fmt.Fprintf(&b, "\t\treturn fmt.Errorf(\"%s returned an empty string\")\n", sig.Name)
			b.WriteString("\t}\n")
		default:
			// bool / numeric: any value is acceptable, the call
			// completing is the assertion.
			fmt.Fprintf(&b, "\t_ = %s\n", call)
		}
	}

	b.WriteString("\treturn nil\n")
	b.WriteString("}\n")

	return Suite{Source: b.String(), Path: path}
}

// structuralSuite tests a modification task by inspecting the
// candidate text for the control-flow shape the task demands, since
// interactive/looping edits are not pure-function testable.
func structuralSuite(t task.Task, source string) Suite {
	in := task.DetectIntent(t.Description)

	type check struct {
		desc    string
		needles []string
	}
	var checks []check
	if in.WantsLoop {
		checks = append(checks, check{
			desc:    "an unbounded loop",
			needles: []string{"for {", "for true"},
		})
	}
	if in.WantsDisplay || in.WantsLoop {
		checks = append(checks, check{
			desc:    "printed output",
			needles: []string{"fmt.Print"},
		})
	}
	if in.WantsErrorHandling {
		checks = append(checks, check{
			desc:    "error handling",
			needles: []string{"err != nil", "recover("},
		})
	}
	if len(checks) == 0 {
		checks = append(checks, check{
			desc:    "a function declaration",
			needles: []string{"func "},
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "const candidateSource = %q\n\n", source)
	b.WriteString("func runTests() error {\n")
	for _, c := range checks {
		conds := make([]string, len(c.needles))
		for i, n := range c.needles {
			conds[i] = fmt.Sprintf("!strings.Contains(candidateSource, %q)", n)
		}
		fmt.Fprintf(&b, "\tif %s {\n", strings.Join(conds, " && "))
		fmt.Fprintf(&b, "\t\treturn fmt.Errorf(\"modified code is missing %s\")\n", c.desc)
		b.WriteString("\t}\n")
	}
	b.WriteString("\treturn nil\n")
	b.WriteString("}\n")

	return Suite{Source: b.String(), Path: PathStructural, Structural: true}
}
