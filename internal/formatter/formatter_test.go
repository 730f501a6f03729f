package formatter_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/temirov/runbot/internal/execution"
	"github.com/temirov/runbot/internal/formatter"
)

const (
	testLanguage = "python"
	testVersion  = "3.10.0"
)

func outputResponse(output string) execution.Response {
	return execution.Response{Stdout: output, Output: output}
}

func blockBody(t *testing.T, block string, tag string) string {
	t.Helper()
	prefix := "```" + tag + "\n"
	if !strings.HasPrefix(block, prefix) || !strings.HasSuffix(block, "```") {
		t.Fatalf("block is not fenced: %q", block)
	}
	return strings.TrimSuffix(strings.TrimPrefix(block, prefix), "```")
}

func TestFormatPythonScenario(t *testing.T) {
	result := formatter.New(formatter.Limits{}).Format(formatter.Input{
		Language: testLanguage,
		Version:  testVersion,
		Response: outputResponse("1\n"),
	})
	if !strings.Contains(strings.ToLower(result.Introduction), "here is your python(3.10.0) output") {
		t.Fatalf("unexpected introduction %q", result.Introduction)
	}
	if body := blockBody(t, result.OutputBlock, ""); strings.TrimSpace(body) != "1" {
		t.Fatalf("unexpected body %q", body)
	}
	if result.String() != "Here is your python(3.10.0) output\n```\n1\n```" {
		t.Fatalf("unexpected message %q", result.String())
	}
}

func TestFormatIntroductions(t *testing.T) {
	testCases := []struct {
		name       string
		mention    string
		sourceLink string
		response   execution.Response
		expected   string
	}{
		{
			name:     "compile errors",
			mention:  "<@1>",
			response: execution.Response{CompileStderr: "main.c:1: error\n", HasCompile: true},
			expected: "<@1>I received python(3.10.0) compile errors\n",
		},
		{
			name:     "only error output",
			mention:  "<@1>",
			response: execution.Response{Stderr: "boom\n", Output: "boom\n"},
			expected: "<@1>I only received python(3.10.0) error output\n",
		},
		{
			name:       "regular output with mention and link",
			mention:    "<@1>",
			sourceLink: "https://chat.example/m/1",
			response:   outputResponse("ok\n"),
			expected:   "Here is your python(3.10.0) output <@1> from running: https://chat.example/m/1\n",
		},
		{
			name:     "stdout and stderr",
			response: execution.Response{Stdout: "a", Stderr: "b", Output: "ab"},
			expected: "Here is your python(3.10.0) output\n",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := formatter.New(formatter.Limits{}).Format(formatter.Input{
				Language:   testLanguage,
				Version:    testVersion,
				Mention:    testCase.mention,
				SourceLink: testCase.sourceLink,
				Response:   testCase.response,
			})
			if result.Introduction != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, result.Introduction)
			}
		})
	}
}

func TestFormatKeepsFirstThirtyLines(t *testing.T) {
	lines := make([]string, 0, 51)
	for index := 1; index <= 51; index++ {
		lines = append(lines, fmt.Sprintf("line %d", index))
	}
	result := formatter.New(formatter.Limits{}).Format(formatter.Input{
		Language: testLanguage,
		Version:  testVersion,
		Response: outputResponse(strings.Join(lines, "\n")),
	})
	body := blockBody(t, result.OutputBlock, "")
	if got := strings.Split(body, "\n"); len(got) != 30 || got[29] != "line 30" {
		t.Fatalf("expected exactly the first 30 lines, got %d ending with %q", len(got), got[len(got)-1])
	}
}

func TestFormatEscapesMentions(t *testing.T) {
	result := formatter.New(formatter.Limits{}).Format(formatter.Input{
		Language: testLanguage,
		Version:  testVersion,
		Response: outputResponse("@everyone @here <@123456789012345678> <@&123456789012345678> @someone"),
	})
	body := blockBody(t, result.OutputBlock, "")
	for _, forbidden := range []string{"@everyone", "@here", "<@123456789012345678>", "<@&123456789012345678>"} {
		if strings.Contains(body, forbidden) {
			t.Fatalf("mention %q survived in %q", forbidden, body)
		}
	}
	if !strings.Contains(body, "@\u200beveryone") || !strings.Contains(body, "@\u200b&123456789012345678") {
		t.Fatalf("mentions must be escaped, not removed: %q", body)
	}
	if !strings.Contains(body, "@someone") {
		t.Fatalf("plain words must stay untouched: %q", body)
	}
}

func TestFormatNeutralizesFences(t *testing.T) {
	result := formatter.New(formatter.Limits{}).Format(formatter.Input{
		Language:     testLanguage,
		Version:      testVersion,
		OutputSyntax: "md",
		Response:     outputResponse("```\nescape attempt\n```\n`"),
	})
	if count := strings.Count(result.OutputBlock, "```"); count != 2 {
		t.Fatalf("expected only the two wrapping fences, found %d in %q", count, result.OutputBlock)
	}
	if !strings.HasPrefix(result.OutputBlock, "```md\n") {
		t.Fatalf("block must carry the output syntax tag: %q", result.OutputBlock)
	}
}

func TestFormatStripsNullBytes(t *testing.T) {
	result := formatter.New(formatter.Limits{}).Format(formatter.Input{
		Language: testLanguage,
		Version:  testVersion,
		Response: outputResponse("a\x00b"),
	})
	if result.OutputBlock != "```\nab```" {
		t.Fatalf("unexpected block %q", result.OutputBlock)
	}
}

func TestFormatTruncatesToMessageCap(t *testing.T) {
	testCases := []struct {
		name         string
		output       string
		outputSyntax string
		mention      string
	}{
		{name: "ascii", output: strings.Repeat("x", 5000)},
		{name: "multibyte with tag", output: strings.Repeat("é", 3000), outputSyntax: "json"},
		{name: "backticks expand", output: strings.Repeat("`", 1500), mention: "<@123456789012345678>"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			format := formatter.New(formatter.Limits{})
			result := format.Format(formatter.Input{
				Language:     testLanguage,
				Version:      testVersion,
				OutputSyntax: testCase.outputSyntax,
				Mention:      testCase.mention,
				Response:     outputResponse(testCase.output),
			})
			if !strings.HasSuffix(result.OutputBlock, formatter.TruncationIndicator+"```") {
				t.Fatalf("truncated block must end with the indicator and the fence: %q", result.OutputBlock[len(result.OutputBlock)-20:])
			}
			if length := utf8.RuneCountInString(result.String()); length != formatter.DefaultMessageCap {
				t.Fatalf("expected the message to fill the cap exactly, got %d", length)
			}
			for _, segment := range format.Segments(result) {
				if utf8.RuneCountInString(segment) > formatter.DefaultMessageCap {
					t.Fatalf("segment exceeds cap: %d", utf8.RuneCountInString(segment))
				}
			}
		})
	}
}

func TestFormatKeepsOversizedFieldsWithinCap(t *testing.T) {
	longLink := "https://chat.example/channels/1/" + strings.Repeat("9", 2100)
	testCases := []struct {
		name               string
		input              formatter.Input
		expectedBlockStart string
		expectedIntroStart string
	}{
		{
			name: "oversized output syntax",
			input: formatter.Input{
				OutputSyntax: strings.Repeat("j", 2500),
				Response:     outputResponse("hello\n"),
			},
			expectedBlockStart: "```\nhello",
			expectedIntroStart: "Here is your python(3.10.0) output\n",
		},
		{
			name: "oversized source link",
			input: formatter.Input{
				SourceLink: longLink,
				Response:   outputResponse(strings.Repeat("x", 3000)),
			},
			expectedBlockStart: "```\n",
			expectedIntroStart: "Here is your python(3.10.0) output from running: https://chat.example/channels/1/",
		},
		{
			name: "oversized mention and link",
			input: formatter.Input{
				Mention:    strings.Repeat("m", 2500),
				SourceLink: longLink,
				Response:   outputResponse("1\n"),
			},
			expectedBlockStart: "```\n",
			expectedIntroStart: "Here is your python(3.10.0) output mmm",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			format := formatter.New(formatter.Limits{})
			input := testCase.input
			input.Language = testLanguage
			input.Version = testVersion
			result := format.Format(input)
			if !strings.HasPrefix(result.Introduction, testCase.expectedIntroStart) {
				t.Fatalf("unexpected introduction %q", result.Introduction)
			}
			if !strings.HasPrefix(result.OutputBlock, testCase.expectedBlockStart) {
				t.Fatalf("unexpected block %q", result.OutputBlock)
			}
			if !strings.HasSuffix(result.OutputBlock, "```") {
				t.Fatalf("block must stay closed: %q", result.OutputBlock)
			}
			for _, segment := range format.Segments(result) {
				if length := utf8.RuneCountInString(segment); length > formatter.DefaultMessageCap {
					t.Fatalf("segment exceeds cap: %d", length)
				}
			}
		})
	}
}

func TestFormatWithoutOutputTruncatesMention(t *testing.T) {
	format := formatter.New(formatter.Limits{})
	result := format.Format(formatter.Input{
		Language: testLanguage,
		Version:  testVersion,
		Mention:  strings.Repeat("m", 2500),
	})
	if length := utf8.RuneCountInString(result.Plain); length != formatter.DefaultMessageCap {
		t.Fatalf("expected the plain message to be cut to the cap, got %d", length)
	}
}

func TestFormatWithoutOutput(t *testing.T) {
	testCases := []struct {
		name     string
		mention  string
		expected string
	}{
		{name: "without mention", expected: "Your python(3.10.0) code ran without output"},
		{name: "with mention", mention: "<@7>", expected: "Your python(3.10.0) code ran without output <@7>"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			format := formatter.New(formatter.Limits{})
			result := format.Format(formatter.Input{
				Language: testLanguage,
				Version:  testVersion,
				Mention:  testCase.mention,
				Response: execution.Response{Stdout: "", Output: ""},
			})
			if result.Plain != testCase.expected || result.String() != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, result.String())
			}
			segments := format.Segments(result)
			if len(segments) != 1 || segments[0] != testCase.expected {
				t.Fatalf("unexpected segments %q", segments)
			}
		})
	}
}

func TestSegmentsSplitLongSourceEcho(t *testing.T) {
	format := formatter.New(formatter.Limits{})
	testCases := []struct {
		name             string
		source           string
		output           string
		expectedSegments int
	}{
		{name: "everything fits", source: "print(1)", output: "1\n", expectedSegments: 1},
		{name: "source and output apart", source: strings.Repeat("s", 1500), output: strings.Repeat("o", 1000), expectedSegments: 2},
		{name: "three messages", source: strings.Repeat("s", 4000), output: strings.Repeat("o", 4000), expectedSegments: 3},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := format.Format(formatter.Input{
				Language:   testLanguage,
				Version:    testVersion,
				Source:     testCase.source,
				EchoSource: true,
				Response:   outputResponse(testCase.output),
			})
			if !strings.HasPrefix(result.SourceBlock, "```python\n") {
				t.Fatalf("source echo must be tagged with the language: %q", result.SourceBlock[:20])
			}
			segments := format.Segments(result)
			if len(segments) != testCase.expectedSegments {
				t.Fatalf("expected %d segments, got %d", testCase.expectedSegments, len(segments))
			}
			for _, segment := range segments {
				if utf8.RuneCountInString(segment) > formatter.DefaultMessageCap {
					t.Fatalf("segment exceeds cap: %d", utf8.RuneCountInString(segment))
				}
			}
			if !strings.HasPrefix(segments[0], result.Introduction) {
				t.Fatalf("the introduction must lead the first segment")
			}
		})
	}
}

func TestHowtoListsLanguages(t *testing.T) {
	help := formatter.Howto([]string{"go", "python"}, "./run")
	if !strings.Contains(help, "go, python") {
		t.Fatalf("help must list languages: %q", help)
	}
	if !strings.Contains(help, "./run <language>") {
		t.Fatalf("help must use the invocation: %q", help)
	}
	if !strings.Contains(formatter.Howto(nil, ""), "/run <language>") {
		t.Fatalf("empty invocation must fall back to /run")
	}
}
