package formatter

import (
	"strings"
)

const (
	// DefaultInvocation is the command shown in the usage template.
	DefaultInvocation = "/run"

	languageListSeparator = ", "
	howtoLanguagesHeading = "**Here are my supported languages:**\n"
	howtoUsageHeading     = "\n\n**You can run code like this:**\n"
	howtoUsageTemplate    = "%INVOCATION% <language>\n" +
		"command line parameters (optional) - 1 per line\n" +
		"\\`\\`\\`\nyour code\n\\`\\`\\`\n" +
		"standard input (optional)\n"
	howtoInvocationPlaceholder = "%INVOCATION%"
	noLanguagesText            = "(the language list is still loading)"
)

// LanguageList renders canonical language names as a comma separated list.
func LanguageList(languages []string) string {
	if len(languages) == 0 {
		return noLanguagesText
	}
	return strings.Join(languages, languageListSeparator)
}

// Howto renders the usage help with the supported languages. An empty invocation selects
// DefaultInvocation.
func Howto(languages []string, invocation string) string {
	if strings.TrimSpace(invocation) == "" {
		invocation = DefaultInvocation
	}
	var builder strings.Builder
	builder.WriteString(howtoLanguagesHeading)
	builder.WriteString(LanguageList(languages))
	builder.WriteString(howtoUsageHeading)
	builder.WriteString(strings.ReplaceAll(howtoUsageTemplate, howtoInvocationPlaceholder, invocation))
	return builder.String()
}
