// Package formatter renders execution results as chat messages that fit the platform message cap.
package formatter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/temirov/runbot/internal/execution"
)

const (
	// DefaultMessageCap is the hard character limit of a single chat message.
	DefaultMessageCap = 2000
	// DefaultMaxOutputLines is the number of output lines kept.
	DefaultMaxOutputLines = 30
	// TruncationIndicator marks output cut to fit the message cap.
	TruncationIndicator = "[...]"

	fenceDelimiter = "```"
	// fenceOverhead counts the opening fence, its newline and the closing fence.
	fenceOverhead = 2*len(fenceDelimiter) + 1

	zeroWidthSpace = "\u200b"
	nullCharacter  = "\x00"
	lineSeparator  = "\n"

	compileErrorsIntroductionFormat = "%sI received %s compile errors"
	errorOutputIntroductionFormat   = "%sI only received %s error output"
	outputIntroductionFormat        = "Here is your %s output"
	noOutputMessageFormat           = "Your %s code ran without output"
	sourceLinkSuffixFormat          = " from running: %s"
	languageInfoFormat              = "%s(%s)"
)

var mentionPattern = regexp.MustCompile(`@(everyone|here|[!&]?[0-9]{17,20})`)

// Limits bounds the rendered result. Zero fields select the defaults.
type Limits struct {
	MessageCap     int
	MaxOutputLines int
}

// Input is everything the formatter needs about one finished execution.
type Input struct {
	Language     string
	Version      string
	OutputSyntax string
	Mention      string
	SourceLink   string
	Source       string
	EchoSource   bool
	Response     execution.Response
}

// Result is a rendered execution. Either Plain is set, or Introduction and OutputBlock are.
type Result struct {
	Introduction string
	SourceBlock  string
	OutputBlock  string
	Plain        string
}

// String joins the introduction and the output block for single-message call sites.
func (result Result) String() string {
	if result.Plain != "" {
		return result.Plain
	}
	return result.Introduction + result.OutputBlock
}

// Formatter renders Results within its Limits.
type Formatter struct {
	limits Limits
}

// New constructs a Formatter.
func New(limits Limits) Formatter {
	if limits.MessageCap <= 0 {
		limits.MessageCap = DefaultMessageCap
	}
	if limits.MaxOutputLines <= 0 {
		limits.MaxOutputLines = DefaultMaxOutputLines
	}
	return Formatter{limits: limits}
}

// Limits reports the effective limits.
func (formatter Formatter) Limits() Limits {
	return formatter.limits
}

// Format renders input.
func (formatter Formatter) Format(input Input) Result {
	languageInfo := fmt.Sprintf(languageInfoFormat, input.Language, input.Version)
	response := input.Response
	combined := response.CompileStderr + response.Output
	if combined == "" {
		plain := appendMention(fmt.Sprintf(noOutputMessageFormat, languageInfo), input.Mention)
		return Result{Plain: truncateRunes(plain, formatter.limits.MessageCap)}
	}

	output := firstLines(combined, formatter.limits.MaxOutputLines)
	output = EscapeMentions(output)
	output = EscapeBackticks(output)

	var lead string
	switch {
	case response.CompileStderr != "":
		lead = fmt.Sprintf(compileErrorsIntroductionFormat, input.Mention, languageInfo)
	case response.Stdout == "" && response.Stderr != "":
		lead = fmt.Sprintf(errorOutputIntroductionFormat, input.Mention, languageInfo)
	default:
		lead = appendMention(fmt.Sprintf(outputIntroductionFormat, languageInfo), input.Mention)
	}
	introduction := formatter.introduction(lead, input.SourceLink)

	result := Result{
		Introduction: introduction,
		OutputBlock:  formatter.fence(input.OutputSyntax, output, utf8.RuneCountInString(introduction)),
	}
	if input.EchoSource && strings.TrimSpace(input.Source) != "" {
		result.SourceBlock = formatter.fence(input.Language, EscapeBackticks(EscapeMentions(input.Source)), 0)
	}
	return result
}

// Segments packs the parts of result into as few messages as possible, keeping their order and
// never exceeding the message cap.
func (formatter Formatter) Segments(result Result) []string {
	if result.Plain != "" {
		return []string{result.Plain}
	}
	segments := []string{}
	current := ""
	for _, part := range []string{result.Introduction, result.SourceBlock, result.OutputBlock} {
		if part == "" {
			continue
		}
		if current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(part) > formatter.limits.MessageCap {
			segments = append(segments, current)
			current = ""
		}
		current += part
	}
	if current != "" {
		segments = append(segments, current)
	}
	return segments
}

// introduction terminates lead, plus the source link when present, with a newline. It is cut so
// that a truncated block still fits behind it, shortening the link before the lead.
func (formatter Formatter) introduction(lead string, sourceLink string) string {
	limit := formatter.limits.MessageCap - fenceOverhead - utf8.RuneCountInString(TruncationIndicator) - len(lineSeparator)
	if sourceLink != "" {
		suffix := fmt.Sprintf(sourceLinkSuffixFormat, "")
		linkBudget := limit - utf8.RuneCountInString(lead) - utf8.RuneCountInString(suffix)
		if linkBudget > 0 {
			lead += suffix + truncateRunes(sourceLink, linkBudget)
		}
	}
	return truncateRunes(lead, limit) + lineSeparator
}

// fence wraps text in a tagged fenced block that fits into the cap next to reserved characters.
// A tag too long to leave room for the truncation indicator is dropped.
func (formatter Formatter) fence(tag string, text string, reserved int) string {
	budget := formatter.limits.MessageCap - reserved - fenceOverhead
	if utf8.RuneCountInString(tag) > budget-utf8.RuneCountInString(TruncationIndicator) {
		tag = ""
	}
	available := budget - utf8.RuneCountInString(tag)
	if utf8.RuneCountInString(text) > available {
		keep := available - utf8.RuneCountInString(TruncationIndicator)
		if keep < 0 {
			keep = 0
		}
		text = string([]rune(text)[:keep]) + TruncationIndicator
	}
	return fenceDelimiter + tag + lineSeparator + strings.ReplaceAll(text, nullCharacter, "") + fenceDelimiter
}

// EscapeMentions inserts a zero-width space after '@' in mass and user or role mentions.
func EscapeMentions(text string) string {
	return mentionPattern.ReplaceAllString(text, "@"+zeroWidthSpace+"${1}")
}

// EscapeBackticks inserts a zero-width space after every backtick, so no fence survives.
func EscapeBackticks(text string) string {
	return strings.ReplaceAll(text, "`", "`"+zeroWidthSpace)
}

func firstLines(text string, limit int) string {
	lines := strings.SplitN(text, lineSeparator, limit+1)
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return strings.Join(lines, lineSeparator)
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

func appendMention(text string, mention string) string {
	if mention == "" {
		return text
	}
	return text + " " + mention
}
