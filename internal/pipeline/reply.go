package pipeline

import (
	"fmt"
	"strings"

	"github.com/temirov/runbot/internal/formatter"
	"github.com/temirov/runbot/internal/utils"
)

// RejectionKind classifies input that never reached the execution backend.
type RejectionKind int

const (
	// RejectionFormat means the message did not follow the selected dialect.
	RejectionFormat RejectionKind = iota + 1
	// RejectionUnsupportedLanguage means the language token is not in the registry.
	RejectionUnsupportedLanguage
	// RejectionFileTooLarge means the attachment exceeds the size cap.
	RejectionFileTooLarge
	// RejectionMissingExtension means the attachment name has no extension.
	RejectionMissingExtension
	// RejectionDecode means the attachment is not UTF-8 text.
	RejectionDecode
	// RejectionNoSource means there was nothing to run.
	RejectionNoSource
)

const (
	// LanguageRequestURL is linked from unsupported language replies.
	LanguageRequestURL = "https://github.com/engineer-man/piston/issues"

	invalidFormatMessage       = "Invalid command format"
	unsupportedLanguageFormat  = "Unsupported language: **%s**\n[Request a new language](%s)"
	unsupportedExtensionFormat = "Unsupported file extension: **%s**\n[Request a new language](%s)"
	fileTooLargeFormat         = "Source file is too big (%d>%d)"
	missingExtensionMessage    = "Please provide a source file with a file extension"
	noSourceMessage            = "No source code found"
	unsupportedTokenRuneLimit  = 1000
	unknownRejectionKindFormat = "rejection(%d)"
	rejectionKindNameFormat    = "format"
	rejectionKindNameLanguage  = "unsupported_language"
	rejectionKindNameFileSize  = "file_too_large"
	rejectionKindNameExtension = "missing_extension"
	rejectionKindNameDecode    = "decode"
	rejectionKindNameNoSource  = "no_source"
)

var rejectionKindNames = map[RejectionKind]string{
	RejectionFormat:              rejectionKindNameFormat,
	RejectionUnsupportedLanguage: rejectionKindNameLanguage,
	RejectionFileTooLarge:        rejectionKindNameFileSize,
	RejectionMissingExtension:    rejectionKindNameExtension,
	RejectionDecode:              rejectionKindNameDecode,
	RejectionNoSource:            rejectionKindNameNoSource,
}

// String returns the snake case name used in logs and HTTP payloads.
func (kind RejectionKind) String() string {
	if name, found := rejectionKindNames[kind]; found {
		return name
	}
	return fmt.Sprintf(unknownRejectionKindFormat, int(kind))
}

// Rejection is a user-facing refusal.
type Rejection struct {
	Kind    RejectionKind
	Message string
}

// Reply is the outcome of an invocation: exactly one of Result and Rejection is set.
type Reply struct {
	Result    *formatter.Result
	Rejection *Rejection
}

// Rejected reports whether the invocation was refused.
func (reply Reply) Rejected() bool {
	return reply.Rejection != nil
}

// Text renders the reply as a single message.
func (reply Reply) Text() string {
	if reply.Rejection != nil {
		return reply.Rejection.Message
	}
	if reply.Result != nil {
		return reply.Result.String()
	}
	return ""
}

func reject(kind RejectionKind, message string) Reply {
	return Reply{Rejection: &Rejection{Kind: kind, Message: message}}
}

func rejectUnsupportedLanguage(token string) Reply {
	return reject(RejectionUnsupportedLanguage, fmt.Sprintf(unsupportedLanguageFormat, utils.Truncate(strings.TrimSpace(token), unsupportedTokenRuneLimit), LanguageRequestURL))
}

func rejectUnsupportedExtension(extension string) Reply {
	return reject(RejectionUnsupportedLanguage, fmt.Sprintf(unsupportedExtensionFormat, utils.Truncate(extension, unsupportedTokenRuneLimit), LanguageRequestURL))
}
