// Package grammar extracts run commands from free-form chat messages.
//
// An inline command looks like
//
//	/run <language> -> <output syntax>
//	argument one
//	argument two
//	```<syntax>
//	source
//	```
//	standard input
//
// where everything except the fenced block is optional. The file dialect uses the same first line
// and argument lines but takes its source from an attachment, so standard input starts after the
// first blank line instead of after a closing fence.
package grammar

import (
	"errors"
	"strings"
	"unicode"
)

const (
	fenceDelimiter     = "```"
	outputSyntaxMarker = "->"
	runMarker          = "/run"
	editLastRunMarker  = "/edit_last_run"
	runCommandName     = "run"
)

// ErrInvalidFormat indicates that a message does not follow the selected dialect.
var ErrInvalidFormat = errors.New("invalid command format")

var invocationMarkers = []string{editLastRunMarker, runMarker}

// Command is the structured form of a message. Args is never nil.
type Command struct {
	// Language is the leading language token, if any.
	Language string
	// OutputSyntax is the syntax hint given after "->".
	OutputSyntax string
	// Args holds one command line argument per non-blank argument line.
	Args []string
	// Stdin is the text following the fenced block (or the argument block in file mode).
	Stdin string
	// Source is the content of the fenced block. Empty in file mode.
	Source string
	// SyntaxTag is the syntax name on the opening fence.
	SyntaxTag string
}

// Parse applies dialect to content.
func Parse(dialect Dialect, content string) (Command, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	switch dialect {
	case DialectLoose:
		return parseInline(normalized)
	case DialectStrict:
		remainder, found := stripInvocationMarker(normalized)
		if !found {
			return Command{}, ErrInvalidFormat
		}
		return parseInline(remainder)
	case DialectFile:
		return parseFileMessage(normalized)
	default:
		return Command{}, ErrInvalidFormat
	}
}

// SplitArguments splits an argument block into one argument per line, dropping blank lines.
func SplitArguments(block string) []string {
	arguments := []string{}
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			arguments = append(arguments, trimmed)
		}
	}
	return arguments
}

// SelectLanguage returns the first non-blank candidate, lowercased. Callers pass candidates in
// precedence order: explicit override, leading token, fence tag, file extension.
func SelectLanguage(candidates ...string) string {
	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return strings.ToLower(trimmed)
		}
	}
	return ""
}

// NormalizePrefix rewrites a leading "<prefix>run" into "/run" so that every configured chat prefix
// reaches the strict dialect in the same shape.
func NormalizePrefix(content string, prefixes []string) string {
	trimmed := strings.TrimLeftFunc(content, unicode.IsSpace)
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		invocation := prefix + runCommandName
		if len(trimmed) >= len(invocation) && strings.EqualFold(trimmed[:len(invocation)], invocation) {
			return runMarker + trimmed[len(invocation):]
		}
	}
	return content
}

func parseInline(content string) (Command, error) {
	openIndex := strings.Index(content, fenceDelimiter)
	if openIndex < 0 {
		return Command{}, ErrInvalidFormat
	}
	closeIndex := strings.LastIndex(content, fenceDelimiter)
	if closeIndex < openIndex+len(fenceDelimiter) {
		return Command{}, ErrInvalidFormat
	}

	header := content[:openIndex]
	firstLine, argumentBlock, _ := strings.Cut(header, "\n")
	language, outputSyntax := parseInvocationLine(firstLine)
	syntaxTag, source := parseFenceBody(content[openIndex+len(fenceDelimiter) : closeIndex])

	stdin := strings.TrimPrefix(content[closeIndex+len(fenceDelimiter):], "\n")
	if strings.TrimSpace(stdin) == "" {
		stdin = ""
	}

	return Command{
		Language:     language,
		OutputSyntax: outputSyntax,
		Args:         SplitArguments(argumentBlock),
		Stdin:        stdin,
		Source:       source,
		SyntaxTag:    syntaxTag,
	}, nil
}

func parseFileMessage(content string) (Command, error) {
	if strings.TrimSpace(content) == "" {
		return Command{Args: []string{}}, nil
	}
	remainder, found := stripInvocationMarker(content)
	if !found {
		return Command{}, ErrInvalidFormat
	}
	firstLine, body, _ := strings.Cut(remainder, "\n")
	language, outputSyntax := parseInvocationLine(firstLine)

	lines := strings.Split(body, "\n")
	argumentEnd := 0
	for argumentEnd < len(lines) && strings.TrimSpace(lines[argumentEnd]) != "" {
		argumentEnd++
	}
	stdinStart := argumentEnd
	for stdinStart < len(lines) && strings.TrimSpace(lines[stdinStart]) == "" {
		stdinStart++
	}

	return Command{
		Language:     language,
		OutputSyntax: outputSyntax,
		Args:         SplitArguments(strings.Join(lines[:argumentEnd], "\n")),
		Stdin:        strings.Join(lines[stdinStart:], "\n"),
	}, nil
}

// parseInvocationLine reads "<language> -> <syntax>" where both parts are optional.
func parseInvocationLine(line string) (string, string) {
	languagePart := line
	outputSyntax := ""
	if markerIndex := strings.Index(line, outputSyntaxMarker); markerIndex >= 0 {
		languagePart = line[:markerIndex]
		outputSyntax = firstField(line[markerIndex+len(outputSyntaxMarker):])
	}
	return firstField(languagePart), outputSyntax
}

// parseFenceBody separates an optional syntax tag on the opening fence line from the source.
func parseFenceBody(body string) (string, string) {
	newlineIndex := strings.IndexByte(body, '\n')
	if newlineIndex > 0 {
		candidate := body[:newlineIndex]
		if strings.IndexFunc(candidate, unicode.IsSpace) < 0 {
			return candidate, strings.TrimLeftFunc(body[newlineIndex+1:], unicode.IsSpace)
		}
	}
	return "", strings.TrimLeftFunc(body, unicode.IsSpace)
}

func stripInvocationMarker(content string) (string, bool) {
	trimmed := strings.TrimLeftFunc(content, unicode.IsSpace)
	for _, marker := range invocationMarkers {
		if len(trimmed) < len(marker) || !strings.EqualFold(trimmed[:len(marker)], marker) {
			continue
		}
		remainder := trimmed[len(marker):]
		if remainder == "" || isMarkerBoundary(remainder[0]) {
			return remainder, true
		}
	}
	return "", false
}

func isMarkerBoundary(character byte) bool {
	return character == '`' || character == '-' || unicode.IsSpace(rune(character))
}

func firstField(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
