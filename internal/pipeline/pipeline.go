// Package pipeline runs chat commands end to end: parse, resolve, preprocess, execute and format.
//
// Input problems are returned as Reply.Rejection values without contacting the backend. Backend
// and transport failures are returned as errors; UserMessage renders them for the caller.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/runbot/internal/boilerplate"
	"github.com/temirov/runbot/internal/execution"
	"github.com/temirov/runbot/internal/formatter"
	"github.com/temirov/runbot/internal/grammar"
	"github.com/temirov/runbot/internal/languages"
	"github.com/temirov/runbot/internal/services/telemetry"
	"github.com/temirov/runbot/internal/utils"
)

const (
	// DefaultMaxFileBytes caps attachments.
	DefaultMaxFileBytes int64 = 65535

	logFieldRequestID    = "request_id"
	logFieldDialect      = "dialect"
	logFieldLanguage     = "language"
	logFieldRejection    = "rejection"
	logFieldFilename     = "filename"
	logFieldSize         = "size"
	logMessageRejected   = "command rejected"
	logMessageExecuted   = "command executed"
	logMessageFailed     = "execution failed"
	logMessageAttachment = "attachment accepted"
	logMessageReadFailed = "attachment read failed"
	extensionSeparator   = "."
)

// Resolver maps a language token onto a registry entry.
type Resolver interface {
	Resolve(token string) (languages.Entry, bool)
}

// Executor submits programs to the execution backend.
type Executor interface {
	Execute(ctx context.Context, request execution.Request) (execution.Response, error)
}

// Caller identifies who issued a command and where.
type Caller struct {
	ServerName string
	ServerID   string
	UserName   string
	UserID     string
	Mention    string
}

// Invocation is one command as received from a front end.
type Invocation struct {
	Dialect grammar.Dialect
	// Content is the message text. In file mode it is the text accompanying the attachment.
	Content    string
	Attachment Attachment
	// LanguageOverride, OutputSyntax, Args and Stdin are form-supplied fields; they take precedence
	// over what the message text says.
	LanguageOverride string
	OutputSyntax     string
	Args             []string
	Stdin            string
	Caller           Caller
	MentionCaller    bool
	SourceLink       string
	EchoSource       bool
}

// FormInput is the payload of the interactive run form.
type FormInput struct {
	Language     string
	Code         string
	OutputSyntax string
	Args         string
	Stdin        string
}

// Options wires a Pipeline. Registry and Executor are required.
type Options struct {
	Registry     Resolver
	Executor     Executor
	Preprocessor boilerplate.Preprocessor
	Telemetry    telemetry.Sink
	Formatter    formatter.Formatter
	Extensions   languages.ExtensionMap
	MaxFileBytes int64
	Logger       *zap.Logger
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	registry     Resolver
	executor     Executor
	preprocessor boilerplate.Preprocessor
	telemetry    telemetry.Sink
	formatter    formatter.Formatter
	extensions   languages.ExtensionMap
	maxFileBytes int64
	logger       *zap.Logger
}

type preparedCommand struct {
	entry        languages.Entry
	source       string
	args         []string
	stdin        string
	outputSyntax string
}

// New constructs a Pipeline, filling optional collaborators with defaults.
func New(options Options) *Pipeline {
	preprocessor := options.Preprocessor
	if preprocessor == nil {
		preprocessor = boilerplate.NewInjector()
	}
	sink := options.Telemetry
	if sink == nil {
		sink = telemetry.Discard{}
	}
	resultFormatter := options.Formatter
	if resultFormatter.Limits().MessageCap <= 0 {
		resultFormatter = formatter.New(formatter.Limits{})
	}
	maxFileBytes := options.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		registry:     options.Registry,
		executor:     options.Executor,
		preprocessor: preprocessor,
		telemetry:    sink,
		formatter:    resultFormatter,
		extensions:   options.Extensions,
		maxFileBytes: maxFileBytes,
		logger:       logger,
	}
}

// Formatter exposes the result formatter so front ends can split results into messages.
func (pipeline *Pipeline) Formatter() formatter.Formatter {
	return pipeline.formatter
}

// Run processes one invocation.
func (pipeline *Pipeline) Run(ctx context.Context, invocation Invocation) (Reply, error) {
	logger := pipeline.logger.With(
		zap.String(logFieldRequestID, uuid.NewString()),
		zap.Stringer(logFieldDialect, invocation.Dialect),
	)

	var prepared preparedCommand
	var rejection *Reply
	var prepareErr error
	if invocation.Attachment != nil {
		prepared, rejection, prepareErr = pipeline.prepareFile(ctx, invocation, logger)
	} else {
		prepared, rejection = pipeline.prepareInline(invocation)
	}
	if prepareErr != nil {
		return Reply{}, prepareErr
	}
	if rejection != nil {
		logger.Debug(logMessageRejected, zap.Stringer(logFieldRejection, rejection.Rejection.Kind))
		return *rejection, nil
	}
	return pipeline.execute(ctx, invocation, prepared, logger)
}

// RunForm processes the interactive form. Form replies never mention the caller.
func (pipeline *Pipeline) RunForm(ctx context.Context, form FormInput, caller Caller) (Reply, error) {
	logger := pipeline.logger.With(zap.String(logFieldRequestID, uuid.NewString()))
	entry, found := pipeline.resolve(form.Language)
	if !found {
		reply := rejectUnsupportedLanguage(form.Language)
		logger.Debug(logMessageRejected, zap.Stringer(logFieldRejection, reply.Rejection.Kind))
		return reply, nil
	}
	prepared := preparedCommand{
		entry:        entry,
		source:       form.Code,
		args:         grammar.SplitArguments(form.Args),
		stdin:        form.Stdin,
		outputSyntax: strings.TrimSpace(form.OutputSyntax),
	}
	return pipeline.execute(ctx, Invocation{Caller: caller}, prepared, logger)
}

// ContextMenuInvocation builds the invocation for running another message's content: loose
// dialect, no mention, linked back to the source message.
func ContextMenuInvocation(content string, caller Caller, sourceLink string) Invocation {
	return Invocation{
		Dialect:    grammar.DialectLoose,
		Content:    content,
		Caller:     caller,
		SourceLink: sourceLink,
	}
}

func (pipeline *Pipeline) prepareInline(invocation Invocation) (preparedCommand, *Reply) {
	command, parseErr := grammar.Parse(invocation.Dialect, invocation.Content)
	if parseErr != nil {
		reply := reject(RejectionFormat, invalidFormatMessage)
		return preparedCommand{}, &reply
	}
	token := grammar.SelectLanguage(invocation.LanguageOverride, command.Language, command.SyntaxTag)
	entry, found := pipeline.resolve(token)
	if !found {
		reply := rejectUnsupportedLanguage(token)
		return preparedCommand{}, &reply
	}
	return preparedCommand{
		entry:        entry,
		source:       command.Source,
		args:         pickArguments(invocation.Args, command.Args),
		stdin:        pickText(invocation.Stdin, command.Stdin),
		outputSyntax: pickText(invocation.OutputSyntax, command.OutputSyntax),
	}, nil
}

// prepareFile checks the attachment in the order size, extension, text, language, content so that
// cheap checks run first and nothing is downloaded for a command that would be refused.
func (pipeline *Pipeline) prepareFile(ctx context.Context, invocation Invocation, logger *zap.Logger) (preparedCommand, *Reply, error) {
	attachment := invocation.Attachment
	size := attachment.Size()
	if size > pipeline.maxFileBytes {
		reply := reject(RejectionFileTooLarge, fmt.Sprintf(fileTooLargeFormat, size, pipeline.maxFileBytes))
		return preparedCommand{}, &reply, nil
	}
	extension := strings.TrimPrefix(filepath.Ext(attachment.Filename()), extensionSeparator)
	if extension == "" {
		reply := reject(RejectionMissingExtension, missingExtensionMessage)
		return preparedCommand{}, &reply, nil
	}

	command, parseErr := grammar.Parse(grammar.DialectFile, invocation.Content)
	if parseErr != nil {
		reply := reject(RejectionFormat, invalidFormatMessage)
		return preparedCommand{}, &reply, nil
	}

	token := grammar.SelectLanguage(invocation.LanguageOverride, command.Language, pipeline.extensions.Token(extension))
	entry, found := pipeline.resolve(token)
	if !found {
		reply := rejectUnsupportedLanguage(token)
		if strings.TrimSpace(invocation.LanguageOverride) == "" && command.Language == "" {
			reply = rejectUnsupportedExtension(extension)
		}
		return preparedCommand{}, &reply, nil
	}

	data, readErr := attachment.Read(ctx)
	if readErr != nil {
		logger.Warn(logMessageReadFailed, zap.String(logFieldFilename, attachment.Filename()), zap.Error(readErr))
		return preparedCommand{}, nil, fmt.Errorf("read attachment %s: %w", attachment.Filename(), readErr)
	}
	source, decodeErr := utils.DecodeText(data)
	if decodeErr != nil {
		reply := reject(RejectionDecode, decodeErr.Error())
		return preparedCommand{}, &reply, nil
	}
	logger.Debug(logMessageAttachment, zap.String(logFieldFilename, attachment.Filename()), zap.String(logFieldSize, utils.FormatFileSize(size)))

	return preparedCommand{
		entry:        entry,
		source:       source,
		args:         pickArguments(invocation.Args, command.Args),
		stdin:        pickText(invocation.Stdin, command.Stdin),
		outputSyntax: pickText(invocation.OutputSyntax, command.OutputSyntax),
	}, nil, nil
}

func (pipeline *Pipeline) execute(ctx context.Context, invocation Invocation, prepared preparedCommand, logger *zap.Logger) (Reply, error) {
	source := pipeline.preprocessor.Inject(prepared.entry.Canonical, prepared.source)
	if strings.TrimSpace(source) == "" {
		logger.Debug(logMessageRejected, zap.Stringer(logFieldRejection, RejectionNoSource))
		return reject(RejectionNoSource, noSourceMessage), nil
	}
	if pipeline.executor == nil {
		return Reply{}, fmt.Errorf("execute %s: executor not configured", prepared.entry.Canonical)
	}

	response, executeErr := pipeline.executor.Execute(ctx, execution.Request{
		Language: prepared.entry.Canonical,
		Version:  prepared.entry.Version,
		Source:   source,
		Args:     prepared.args,
		Stdin:    prepared.stdin,
	})
	if executeErr != nil {
		logger.Warn(logMessageFailed, zap.String(logFieldLanguage, prepared.entry.String()), zap.Error(executeErr))
		return Reply{}, executeErr
	}
	logger.Info(logMessageExecuted, zap.String(logFieldLanguage, prepared.entry.String()))

	caller := invocation.Caller
	pipeline.telemetry.Report(telemetry.Entry{
		Server:   caller.ServerName,
		ServerID: caller.ServerID,
		User:     caller.UserName,
		UserID:   caller.UserID,
		Language: prepared.entry.Canonical,
		Source:   source,
	})

	mention := ""
	if invocation.MentionCaller {
		mention = caller.Mention
	}
	result := pipeline.formatter.Format(formatter.Input{
		Language:     prepared.entry.Canonical,
		Version:      prepared.entry.Version,
		OutputSyntax: prepared.outputSyntax,
		Mention:      mention,
		SourceLink:   invocation.SourceLink,
		Source:       prepared.source,
		EchoSource:   invocation.EchoSource,
		Response:     response,
	})
	return Reply{Result: &result}, nil
}

func (pipeline *Pipeline) resolve(token string) (languages.Entry, bool) {
	if pipeline.registry == nil || strings.TrimSpace(token) == "" {
		return languages.Entry{}, false
	}
	return pipeline.registry.Resolve(token)
}

func pickArguments(override []string, parsed []string) []string {
	if len(override) > 0 {
		return override
	}
	if parsed == nil {
		return []string{}
	}
	return parsed
}

func pickText(override string, parsed string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return parsed
}
