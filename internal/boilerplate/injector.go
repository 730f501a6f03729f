// Package boilerplate wraps bare snippets into runnable programs for languages that require an
// entry point.
package boilerplate

import (
	"strings"
	"unicode"
)

// Preprocessor turns user source into the source sent to the execution backend.
//
// Contract:
// - Inject must return an empty (or whitespace-only) source unchanged.
// - Inject must be safe for concurrent use.
type Preprocessor interface {
	Inject(language string, source string) string
}

// Identity is a Preprocessor that never changes the source.
type Identity struct{}

// Inject returns source unchanged.
func (Identity) Inject(language string, source string) string {
	return source
}

type languageFamily string

const (
	familyNone   languageFamily = ""
	familyGo     languageFamily = "go"
	familyJava   languageFamily = "java"
	familyRust   languageFamily = "rust"
	familyC      languageFamily = "c"
	familyCPP    languageFamily = "cpp"
	familyCSharp languageFamily = "csharp"
)

// entryPointDetector reports whether source already defines a program entry point. The second
// result is false when the detector cannot judge the family.
type entryPointDetector interface {
	HasEntryPoint(family languageFamily, source string) (bool, bool)
}

type harness struct {
	family   languageFamily
	markers  []string
	preamble string
	hoist    func(trimmedLine string) bool
	open     string
	close    string
}

var (
	cHarness = harness{
		family:  familyC,
		markers: []string{"main("},
		hoist:   hasPrefix("#"),
		open:    "int main() {\n",
		close:   "\nreturn 0;\n}\n",
	}
	cppHarness = harness{
		family:  familyCPP,
		markers: cHarness.markers,
		hoist:   cHarness.hoist,
		open:    cHarness.open,
		close:   cHarness.close,
	}
	csharpHarness = harness{
		family:  familyCSharp,
		markers: []string{"class ", "static void Main", "static int Main"},
		hoist:   hasPrefix("using "),
		open:    "class Program {\nstatic void Main(string[] args) {\n",
		close:   "\n}\n}\n",
	}
	phpHarness = harness{
		markers:  []string{"<?php"},
		preamble: "<?php\n",
	}

	harnesses = map[string]harness{
		"go": {
			family:   familyGo,
			markers:  []string{"func main", "package "},
			preamble: "package main\n\n",
			hoist:    hasPrefix("import"),
			open:     "func main() {\n",
			close:    "\n}\n",
		},
		"java": {
			family:  familyJava,
			markers: []string{"class ", "interface ", "enum ", "record "},
			hoist:   hasPrefix("import "),
			open:    "class Main {\npublic static void main(String[] args) {\n",
			close:   "\n}\n}\n",
		},
		"scala": {
			markers: []string{"extends App", "def main", "@main"},
			open:    "@main def run(): Unit = {\n",
			close:   "\n}\n",
		},
		"rust": {
			family:  familyRust,
			markers: []string{"fn main"},
			hoist:   hasPrefix("use "),
			open:    "fn main() {\n",
			close:   "\n}\n",
		},
		"c":          cHarness,
		"c++":        cppHarness,
		"csharp":     csharpHarness,
		"csharp.net": csharpHarness,
		"dotnet":     csharpHarness,
		"c#.net":     csharpHarness,
		"php":        phpHarness,
	}
)

// Injector is the default Preprocessor.
type Injector struct {
	detector entryPointDetector
}

// NewInjector returns an Injector that inspects syntax trees when the platform supports it and
// falls back to textual markers otherwise.
func NewInjector() *Injector {
	return &Injector{detector: newEntryPointDetector()}
}

// Inject wraps source into a runnable program when language needs one and source lacks it.
func (injector *Injector) Inject(language string, source string) string {
	selected, found := harnesses[strings.ToLower(strings.TrimSpace(language))]
	if !found || strings.TrimSpace(source) == "" {
		return source
	}
	if injector.isComplete(selected, source) {
		return source
	}
	return selected.wrap(source)
}

func (injector *Injector) isComplete(selected harness, source string) bool {
	if selected.family != familyNone && injector.detector != nil {
		if hasEntryPoint, judged := injector.detector.HasEntryPoint(selected.family, source); judged {
			return hasEntryPoint
		}
	}
	for _, marker := range selected.markers {
		if strings.Contains(source, marker) {
			return true
		}
	}
	return false
}

func (selected harness) wrap(source string) string {
	var hoisted []string
	body := strings.Split(source, "\n")
	if selected.hoist != nil {
		hoisted, body = hoistLines(body, selected.hoist)
	}
	var builder strings.Builder
	builder.WriteString(selected.preamble)
	for _, line := range hoisted {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
	builder.WriteString(selected.open)
	builder.WriteString(strings.TrimRightFunc(strings.Join(body, "\n"), unicode.IsSpace))
	builder.WriteString(selected.close)
	return builder.String()
}

// hoistLines moves lines accepted by hoist to the front. A hoisted line that opens a parenthesized
// block ("import (") takes every line up to the closing parenthesis with it.
func hoistLines(lines []string, hoist func(trimmedLine string) bool) ([]string, []string) {
	hoisted := []string{}
	body := make([]string, 0, len(lines))
	insideBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if insideBlock {
			hoisted = append(hoisted, line)
			if strings.HasPrefix(trimmed, ")") {
				insideBlock = false
			}
			continue
		}
		if trimmed != "" && hoist(trimmed) {
			hoisted = append(hoisted, line)
			if strings.HasSuffix(trimmed, "(") {
				insideBlock = true
			}
			continue
		}
		body = append(body, line)
	}
	return hoisted, body
}

func hasPrefix(prefix string) func(string) bool {
	return func(trimmedLine string) bool {
		return strings.HasPrefix(trimmedLine, prefix)
	}
}

var (
	_ Preprocessor = (*Injector)(nil)
	_ Preprocessor = Identity{}
)
