package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/temirov/runbot/internal/formatter"
	"github.com/temirov/runbot/internal/grammar"
	"github.com/temirov/runbot/internal/pipeline"
	"github.com/temirov/runbot/internal/services/httpapi"
)

const (
	commandNameRun       = "run"
	commandNameRunFile   = "run_file"
	commandNameRunForm   = "run_form"
	commandNameLanguages = "languages"
	commandNameHowto     = "howto"

	responseFormatMarkdown = "markdown"
	segmentSeparator       = "\n"
)

type callerRequest struct {
	Server   string `json:"server"`
	ServerID string `json:"server_id"`
	User     string `json:"user"`
	UserID   string `json:"user_id"`
	Mention  string `json:"mention"`
}

func (request callerRequest) caller() pipeline.Caller {
	return pipeline.Caller{
		ServerName: request.Server,
		ServerID:   request.ServerID,
		UserName:   request.User,
		UserID:     request.UserID,
		Mention:    request.Mention,
	}
}

type runRequest struct {
	callerRequest
	Content     string `json:"content"`
	Dialect     string `json:"dialect"`
	ContextMenu bool   `json:"context_menu"`
	SourceLink  string `json:"source_link"`
	EchoSource  bool   `json:"echo_source"`
}

type runFileRequest struct {
	callerRequest
	Content      string `json:"content"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	Data         []byte `json:"data"`
	Language     string `json:"language"`
	OutputSyntax string `json:"output_syntax"`
	Args         string `json:"args"`
	Stdin        string `json:"stdin"`
}

type runFormRequest struct {
	callerRequest
	Language     string `json:"language"`
	Code         string `json:"code"`
	OutputSyntax string `json:"output_syntax"`
	Args         string `json:"args"`
	Stdin        string `json:"stdin"`
}

type howtoRequest struct {
	Invocation string `json:"invocation"`
}

func commandCapabilities() []httpapi.Capability {
	return []httpapi.Capability{
		{Name: commandNameRun, Description: "run a chat message in the strict, loose or context menu form"},
		{Name: commandNameRunFile, Description: "run an attached source file (base64 data)"},
		{Name: commandNameRunForm, Description: "run the interactive form fields"},
		{Name: commandNameLanguages, Description: "list supported languages"},
		{Name: commandNameHowto, Description: "render usage help"},
	}
}

func commandExecutors(app *application) map[string]httpapi.CommandExecutor {
	return map[string]httpapi.CommandExecutor{
		commandNameRun:       httpapi.CommandExecutorFunc(app.executeRunCommand),
		commandNameRunFile:   httpapi.CommandExecutorFunc(app.executeRunFileCommand),
		commandNameRunForm:   httpapi.CommandExecutorFunc(app.executeRunFormCommand),
		commandNameLanguages: httpapi.CommandExecutorFunc(app.executeLanguagesCommand),
		commandNameHowto:     httpapi.CommandExecutorFunc(app.executeHowtoCommand),
	}
}

func (app *application) executeRunCommand(commandContext context.Context, request httpapi.CommandRequest) (httpapi.CommandResponse, error) {
	var payload runRequest
	if err := decodePayload(request.Payload, &payload); err != nil {
		return httpapi.CommandResponse{}, httpapi.NewCommandExecutionError(http.StatusBadRequest, fmt.Errorf("decode run request: %w", err))
	}
	content := grammar.NormalizePrefix(payload.Content, app.configuration.Chat.Prefixes)
	var invocation pipeline.Invocation
	if payload.ContextMenu {
		invocation = pipeline.ContextMenuInvocation(content, payload.caller(), payload.SourceLink)
	} else {
		dialect, dialectErr := grammar.ParseDialect(payload.Dialect)
		if dialectErr != nil {
			return httpapi.CommandResponse{}, httpapi.NewCommandExecutionError(http.StatusBadRequest, dialectErr)
		}
		invocation = pipeline.Invocation{
			Dialect:       dialect,
			Content:       content,
			Caller:        payload.caller(),
			MentionCaller: strings.TrimSpace(payload.Mention) != "",
			SourceLink:    payload.SourceLink,
			EchoSource:    payload.EchoSource,
		}
	}
	reply, runErr := app.pipeline.Run(commandContext, invocation)
	return app.replyResponse(reply, runErr)
}

func (app *application) executeRunFileCommand(commandContext context.Context, request httpapi.CommandRequest) (httpapi.CommandResponse, error) {
	var payload runFileRequest
	if err := decodePayload(request.Payload, &payload); err != nil {
		return httpapi.CommandResponse{}, httpapi.NewCommandExecutionError(http.StatusBadRequest, fmt.Errorf("decode run_file request: %w", err))
	}
	invocation := pipeline.Invocation{
		Dialect: grammar.DialectFile,
		Content: grammar.NormalizePrefix(payload.Content, app.configuration.Chat.Prefixes),
		Attachment: pipeline.BytesAttachment{
			Name:         payload.Filename,
			Data:         payload.Data,
			DeclaredSize: payload.Size,
		},
		LanguageOverride: payload.Language,
		OutputSyntax:     payload.OutputSyntax,
		Args:             grammar.SplitArguments(payload.Args),
		Stdin:            payload.Stdin,
		Caller:           payload.caller(),
		MentionCaller:    strings.TrimSpace(payload.Mention) != "",
	}
	reply, runErr := app.pipeline.Run(commandContext, invocation)
	return app.replyResponse(reply, runErr)
}

func (app *application) executeRunFormCommand(commandContext context.Context, request httpapi.CommandRequest) (httpapi.CommandResponse, error) {
	var payload runFormRequest
	if err := decodePayload(request.Payload, &payload); err != nil {
		return httpapi.CommandResponse{}, httpapi.NewCommandExecutionError(http.StatusBadRequest, fmt.Errorf("decode run_form request: %w", err))
	}
	form := pipeline.FormInput{
		Language:     payload.Language,
		Code:         payload.Code,
		OutputSyntax: payload.OutputSyntax,
		Args:         payload.Args,
		Stdin:        payload.Stdin,
	}
	reply, runErr := app.pipeline.RunForm(commandContext, form, payload.caller())
	return app.replyResponse(reply, runErr)
}

func (app *application) executeLanguagesCommand(_ context.Context, _ httpapi.CommandRequest) (httpapi.CommandResponse, error) {
	return textResponse(formatter.LanguageList(app.registry.Canonical())), nil
}

func (app *application) executeHowtoCommand(_ context.Context, request httpapi.CommandRequest) (httpapi.CommandResponse, error) {
	var payload howtoRequest
	if err := decodePayload(request.Payload, &payload); err != nil {
		return httpapi.CommandResponse{}, httpapi.NewCommandExecutionError(http.StatusBadRequest, fmt.Errorf("decode howto request: %w", err))
	}
	return textResponse(formatter.Howto(app.registry.Canonical(), payload.Invocation)), nil
}

// replyResponse maps a pipeline outcome onto the wire. Rejections are regular replies marked as
// errored; backend failures carry the user-facing message with a gateway status.
func (app *application) replyResponse(reply pipeline.Reply, runErr error) (httpapi.CommandResponse, error) {
	if runErr != nil {
		statusCode := http.StatusBadGateway
		if pipeline.IsTimeout(runErr) {
			statusCode = http.StatusGatewayTimeout
		}
		return httpapi.CommandResponse{}, httpapi.NewCommandExecutionError(statusCode, errors.New(pipeline.UserMessage(runErr)))
	}
	segments := replySegments(app.pipeline.Formatter(), reply)
	return httpapi.CommandResponse{
		Output:   strings.Join(segments, segmentSeparator),
		Format:   responseFormatMarkdown,
		Segments: segments,
		Errored:  reply.Rejected(),
	}, nil
}

func replySegments(resultFormatter formatter.Formatter, reply pipeline.Reply) []string {
	if reply.Result != nil {
		return resultFormatter.Segments(*reply.Result)
	}
	return []string{reply.Text()}
}

func textResponse(text string) httpapi.CommandResponse {
	return httpapi.CommandResponse{
		Output:   text,
		Format:   responseFormatMarkdown,
		Segments: []string{text},
	}
}

func decodePayload(payload json.RawMessage, target interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, target)
}
