// Package telemetry reports executed programs to the backend usage log.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultLogURL is the public usage log endpoint.
	DefaultLogURL = "https://emkc.org/api/internal/piston/log"
	// DefaultTimeout bounds a single report.
	DefaultTimeout = 15 * time.Second

	// DirectMessageServer is reported for invocations outside a server.
	DirectMessageServer = "DMChannel"
	// DirectMessageServerID is reported for invocations outside a server.
	DirectMessageServerID = "0"

	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"

	logMessageReportFailed   = "telemetry report failed"
	logMessageReportRejected = "telemetry report rejected"
	logFieldLanguage         = "language"
	logFieldStatus           = "status"
)

type httpClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Entry is one usage record.
type Entry struct {
	Server   string `json:"server"`
	ServerID string `json:"server_id"`
	User     string `json:"user"`
	UserID   string `json:"user_id"`
	Language string `json:"language"`
	Source   string `json:"source"`
}

// Sink accepts usage records without blocking the caller.
type Sink interface {
	Report(entry Entry)
}

// Reporter posts entries asynchronously. Failures never reach the caller.
type Reporter struct {
	client   httpClient
	endpoint string
	apiKey   string
	timeout  time.Duration
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewReporter constructs a Reporter. An empty endpoint selects DefaultLogURL; a non-empty apiKey
// is sent as the Authorization header.
func NewReporter(endpoint string, apiKey string, client httpClient, logger *zap.Logger) *Reporter {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultLogURL
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   apiKey,
		timeout:  DefaultTimeout,
		logger:   logger,
	}
}

// Report sends entry in the background, detached from any request context.
func (reporter *Reporter) Report(entry Entry) {
	if entry.Server == "" {
		entry.Server = DirectMessageServer
		entry.ServerID = DirectMessageServerID
	}
	reporter.pending.Add(1)
	go func() {
		defer reporter.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), reporter.timeout)
		defer cancel()
		if sendErr := reporter.send(ctx, entry); sendErr != nil {
			reporter.logger.Debug(logMessageReportFailed, zap.String(logFieldLanguage, entry.Language), zap.Error(sendErr))
		}
	}()
}

// Wait blocks until every report issued so far has finished.
func (reporter *Reporter) Wait() {
	reporter.pending.Wait()
}

func (reporter *Reporter) send(ctx context.Context, entry Entry) error {
	body, encodeErr := json.Marshal(entry)
	if encodeErr != nil {
		return fmt.Errorf("encode telemetry entry: %w", encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, reporter.endpoint, bytes.NewReader(body))
	if requestErr != nil {
		return fmt.Errorf("build telemetry request: %w", requestErr)
	}
	request.Header.Set(headerContentType, contentTypeJSON)
	if reporter.apiKey != "" {
		request.Header.Set(headerAuthorization, reporter.apiKey)
	}
	response, responseErr := reporter.client.Do(request)
	if responseErr != nil {
		return fmt.Errorf("post telemetry entry: %w", responseErr)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		reporter.logger.Debug(logMessageReportRejected, zap.String(logFieldLanguage, entry.Language), zap.Int(logFieldStatus, response.StatusCode))
	}
	return nil
}

// Discard is a Sink that drops every entry.
type Discard struct{}

// Report drops entry.
func (Discard) Report(Entry) {}

var (
	_ Sink = (*Reporter)(nil)
	_ Sink = Discard{}
)
