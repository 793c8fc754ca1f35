package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeloop/internal/signature"
	"codeloop/internal/synth"
)

const primeCandidate = `func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}`

const primeSuite = `func runTests() error {
	if !isPrime(7) {
		return fmt.Errorf("isPrime(7) = false, want true")
	}
	if isPrime(4) {
		return fmt.Errorf("isPrime(4) = true, want false")
	}
	return nil
}`

func TestRunPassingSuite(t *testing.T) {
	r := NewRunner(10 * time.Second)
	res := r.Run(context.Background(), primeCandidate, synth.Suite{Source: primeSuite})
	if !res.Passed {
		t.Fatalf("expected pass, got %s: %s", res.Kind, res.Detail)
	}
	if res.Kind != OutcomePassed {
		t.Errorf("kind = %s, want passed", res.Kind)
	}
}

func TestRunFailingAssertion(t *testing.T) {
	broken := `func isPrime(n int) bool {
	return false
}`
	r := NewRunner(10 * time.Second)
	res := r.Run(context.Background(), broken, synth.Suite{Source: primeSuite})
	if res.Passed {
		t.Fatal("expected failure")
	}
	if res.Kind != OutcomeAssertionFailed {
		t.Errorf("kind = %s, want assertion-failed", res.Kind)
	}
	if !strings.Contains(res.Detail, "isPrime(7)") {
		t.Errorf("detail does not name the failing case: %s", res.Detail)
	}
}

func TestTimeoutIsDistinctKind(t *testing.T) {
	spinning := `func spin(n int) int {
	for {
		n++
	}
}`
	suite := synth.Suite{Source: `func runTests() error {
	_ = spin(1)
	return nil
}`}
	r := NewRunner(300 * time.Millisecond)
	res := r.Run(context.Background(), spinning, suite)
	if res.Kind != OutcomeTimeout {
		t.Fatalf("kind = %s, want timeout", res.Kind)
	}
	if res.Kind == OutcomeAssertionFailed {
		t.Error("timeout conflated with assertion failure")
	}
}

func TestDisallowedImportRejected(t *testing.T) {
	networked := `package main

import "net/http"

func fetch(url string) int {
	resp, _ := http.Get(url)
	_ = resp
	return 0
}`
	r := NewRunner(5 * time.Second)
	res := r.Run(context.Background(), networked, synth.Suite{Source: "func runTests() error { return nil }"})
	if res.Kind != OutcomeEvalError {
		t.Fatalf("kind = %s, want eval-error", res.Kind)
	}
	if !strings.Contains(res.Detail, "not allowed") {
		t.Errorf("detail does not mention the allowlist: %s", res.Detail)
	}
}

func TestEvalErrorOnBrokenSuite(t *testing.T) {
	r := NewRunner(5 * time.Second)
	res := r.Run(context.Background(), primeCandidate, synth.Suite{Source: `func runTests() error {
	return ghostValue
}`})
	if res.Kind != OutcomeEvalError {
		t.Errorf("kind = %s, want eval-error", res.Kind)
	}
}

func TestOutputCaptured(t *testing.T) {
	noisy := `func shout(s string) string {
	fmt.Println("heard:", s)
	return s
}`
	suite := synth.Suite{Source: `func runTests() error {
	_ = shout("hi")
	return nil
}`}
	r := NewRunner(5 * time.Second)
	res := r.Run(context.Background(), noisy, suite)
	if !res.Passed {
		t.Fatalf("unexpected failure: %s", res.Detail)
	}
	if !strings.Contains(res.Output, "heard: hi") {
		t.Errorf("stdout not captured: %q", res.Output)
	}
}

func TestPrevalidate(t *testing.T) {
	r := NewRunner(5 * time.Second)
	ctx := context.Background()

	t.Run("callable and returns", func(t *testing.T) {
		sig, _ := signature.Extract(primeCandidate)
		p := r.Prevalidate(ctx, primeCandidate, sig, []string{"10"})
		if p.Kind != CallReturns {
			t.Errorf("kind = %s, want callable-and-returns (%s)", p.Kind, p.Detail)
		}
	})

	t.Run("panicking candidate", func(t *testing.T) {
		src := `func boom(n int) int {
	panic("nope")
}`
		sig, _ := signature.Extract(src)
		p := r.Prevalidate(ctx, src, sig, []string{"10"})
		if p.Kind != CallPanics {
			t.Errorf("kind = %s, want panics", p.Kind)
		}
	})

	t.Run("silent void candidate", func(t *testing.T) {
		src := `func quiet(n int) {
	_ = n
}`
		sig, _ := signature.Extract(src)
		p := r.Prevalidate(ctx, src, sig, []string{"10"})
		if p.Kind != CallNoOutput {
			t.Errorf("kind = %s, want no-output", p.Kind)
		}
	})

	t.Run("spinning candidate times out", func(t *testing.T) {
		fast := NewRunner(300 * time.Millisecond)
		src := `func spin(n int) int {
	for {
		n++
	}
}`
		sig, _ := signature.Extract(src)
		p := fast.Prevalidate(ctx, src, sig, []string{"1"})
		if p.Kind != CallTimeout {
			t.Errorf("kind = %s, want times-out", p.Kind)
		}
	})
}

func TestDeclaredMainIsLoadedNotRun(t *testing.T) {
	interactive := `func main() {
	var x int
	for {
		fmt.Scan(&x)
		fmt.Println("value:", x)
	}
}`
	program, err := buildProgram(interactive, "func runTests() error { return nil }")
	if err != nil {
		t.Fatalf("buildProgram: %v", err)
	}
	if strings.Contains(program, "func main(") {
		t.Fatalf("merged program still declares main:\n%s", program)
	}

	r := NewRunner(500 * time.Millisecond)
	res := r.Run(context.Background(), interactive, synth.Suite{Source: "func runTests() error { return nil }"})
	if res.Kind == OutcomeTimeout {
		t.Fatal("loading the candidate executed its main")
	}
	if !res.Passed {
		t.Fatalf("expected pass, got %s: %s", res.Kind, res.Detail)
	}
}

func TestScanImports(t *testing.T) {
	body := `func f(s string) int {
	parts := strings.Fields(s)
	n, _ := strconv.Atoi(parts[0])
	return n
}

func runTests() error {
	if f("3") != 3 {
		return fmt.Errorf("bad")
	}
	return nil
}`
	got := scanImports(body)
	want := map[string]bool{"fmt": true, "strconv": true, "strings": true}
	if len(got) != len(want) {
		t.Fatalf("scanImports = %v, want fmt/strconv/strings", got)
	}
	for _, pkg := range got {
		if !want[pkg] {
			t.Errorf("unexpected import %q", pkg)
		}
	}
}
