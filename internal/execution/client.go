// Package execution submits programs to a Piston-compatible execution backend.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultExecuteURL is the public execution endpoint.
	DefaultExecuteURL = "https://emkc.org/api/v2/piston/execute"
	// DefaultTimeout bounds a whole execution round trip.
	DefaultTimeout = 15 * time.Second

	headerAuthorization    = "Authorization"
	headerContentType      = "Content-Type"
	headerAccept           = "Accept"
	contentTypeJSON        = "application/json"
	invalidStatusFormat    = "status %d: %s"
	invalidContentTypeText = "invalid content type"
	noOutputText           = "no output"

	logFieldLanguage   = "language"
	logFieldVersion    = "version"
	logFieldStatus     = "status"
	logFieldDuration   = "duration"
	logMessageExecuted = "execution finished"
)

type httpClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Request is a single program submission. Language must be canonical and Source non-empty.
type Request struct {
	Language string
	Version  string
	Source   string
	Args     []string
	Stdin    string
}

// Response holds the parts of a backend reply the formatter needs.
type Response struct {
	Stdout        string
	Stderr        string
	Output        string
	CompileStderr string
	HasCompile    bool
}

type executeFile struct {
	Content string `json:"content"`
}

type executePayload struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
	Args     []string      `json:"args"`
	Stdin    string        `json:"stdin"`
	Log      int           `json:"log"`
}

type stageResult struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output *string `json:"output"`
}

type executeReply struct {
	Message string       `json:"message"`
	Run     *stageResult `json:"run"`
	Compile *stageResult `json:"compile"`
}

// Client performs execution requests. It is safe for concurrent use.
type Client struct {
	client   httpClient
	endpoint string
	apiKey   string
	logger   *zap.Logger
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	Endpoint   string
	APIKey     string
	HTTPClient httpClient
	Logger     *zap.Logger
}

// NewClient constructs a Client from options.
func NewClient(options Options) *Client {
	endpoint := strings.TrimSpace(options.Endpoint)
	if endpoint == "" {
		endpoint = DefaultExecuteURL
	}
	client := options.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:   client,
		endpoint: endpoint,
		apiKey:   options.APIKey,
		logger:   logger,
	}
}

// Execute submits request once. Backend failures are returned as *APIError; transport failures
// (including timeouts) are returned wrapped.
func (client *Client) Execute(ctx context.Context, request Request) (Response, error) {
	if strings.TrimSpace(request.Source) == "" {
		return Response{}, ErrNoSource
	}
	httpRequest, requestErr := client.buildRequest(ctx, request)
	if requestErr != nil {
		return Response{}, requestErr
	}

	startTime := time.Now()
	httpResponse, responseErr := client.client.Do(httpRequest)
	if responseErr != nil {
		return Response{}, fmt.Errorf("execute %s: %w", request.Language, responseErr)
	}
	defer httpResponse.Body.Close()
	client.logger.Debug(logMessageExecuted,
		zap.String(logFieldLanguage, request.Language),
		zap.String(logFieldVersion, request.Version),
		zap.Int(logFieldStatus, httpResponse.StatusCode),
		zap.Duration(logFieldDuration, time.Since(startTime)),
	)

	var reply executeReply
	if !isJSONContentType(httpResponse.Header.Get(headerContentType)) {
		return Response{}, newAPIError(ErrInvalidContentType, invalidContentTypeText)
	}
	if decodeErr := json.NewDecoder(httpResponse.Body).Decode(&reply); decodeErr != nil {
		if isTimeout(decodeErr) {
			return Response{}, fmt.Errorf("decode execution reply: %w", decodeErr)
		}
		return Response{}, newAPIError(ErrInvalidContentType, invalidContentTypeText)
	}
	if httpResponse.StatusCode != http.StatusOK {
		return Response{}, newAPIError(ErrInvalidStatus, fmt.Sprintf(invalidStatusFormat, httpResponse.StatusCode, reply.Message))
	}
	if reply.Run == nil || reply.Run.Output == nil {
		return Response{}, newAPIError(ErrNoOutput, noOutputText)
	}

	response := Response{
		Stdout: reply.Run.Stdout,
		Stderr: reply.Run.Stderr,
		Output: *reply.Run.Output,
	}
	if reply.Compile != nil {
		response.HasCompile = true
		response.CompileStderr = reply.Compile.Stderr
	}
	return response, nil
}

func (client *Client) buildRequest(ctx context.Context, request Request) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	arguments := request.Args
	if arguments == nil {
		arguments = []string{}
	}
	payload := executePayload{
		Language: request.Language,
		Version:  request.Version,
		Files:    []executeFile{{Content: request.Source}},
		Args:     arguments,
		Stdin:    request.Stdin,
		Log:      0,
	}
	body, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return nil, fmt.Errorf("encode execution request: %w", encodeErr)
	}
	httpRequest, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(body))
	if requestErr != nil {
		return nil, fmt.Errorf("build execution request: %w", requestErr)
	}
	httpRequest.Header.Set(headerContentType, contentTypeJSON)
	httpRequest.Header.Set(headerAccept, contentTypeJSON)
	if client.apiKey != "" {
		httpRequest.Header.Set(headerAuthorization, client.apiKey)
	}
	return httpRequest, nil
}

// isTimeout reports deadline errors, including the client timeout firing mid-body.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var networkError net.Error
	return errors.As(err, &networkError) && networkError.Timeout()
}

func isJSONContentType(value string) bool {
	mediaType, _, parseErr := mime.ParseMediaType(value)
	if parseErr != nil {
		return false
	}
	return mediaType == contentTypeJSON
}
