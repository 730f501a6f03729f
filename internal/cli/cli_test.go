package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/temirov/runbot/internal/services/httpapi"
)

const (
	runtimesPayload = `[
  {"language": "python", "version": "3.10.0", "aliases": ["py", "python3"]},
  {"language": "go", "version": "1.16.2", "aliases": ["golang"]}
]`
	executePayload = `{"language":"python","version":"3.10.0","run":{"stdout":"42\n","stderr":"","output":"42\n","code":0}}`
)

type fakeBackend struct {
	server        *httptest.Server
	executeCalls  atomic.Int32
	executeStatus int
	executeBody   string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	backend := &fakeBackend{executeStatus: http.StatusOK, executeBody: executePayload}
	router := http.NewServeMux()
	router.HandleFunc("/runtimes", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(runtimesPayload))
	})
	router.HandleFunc("/execute", func(writer http.ResponseWriter, request *http.Request) {
		backend.executeCalls.Add(1)
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(backend.executeStatus)
		_, _ = writer.Write([]byte(backend.executeBody))
	})
	backend.server = httptest.NewServer(router)
	t.Cleanup(backend.server.Close)
	return backend
}

// writeTestConfiguration points a configuration file at backend and isolates the home directory.
func writeTestConfiguration(t *testing.T, backend *fakeBackend) string {
	t.Helper()
	homeDirectory := t.TempDir()
	t.Setenv("HOME", homeDirectory)
	t.Setenv("USERPROFILE", homeDirectory)
	content := fmt.Sprintf(
		"backend:\n  execute_url: %s/execute\n  runtimes_url: %s/runtimes\n  timeout: 5s\ntelemetry:\n  enabled: false\nchat:\n  prefixes: [\"/\", \"./\"]\n",
		backend.server.URL, backend.server.URL,
	)
	path := filepath.Join(t.TempDir(), "runbot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write configuration: %v", err)
	}
	return path
}

type recordingCopier struct {
	mutex  sync.Mutex
	copied []string
}

func (copier *recordingCopier) Copy(text string) error {
	copier.mutex.Lock()
	defer copier.mutex.Unlock()
	copier.copied = append(copier.copied, text)
	return nil
}

func executeRoot(t *testing.T, deps dependencies, arguments ...string) (string, error) {
	t.Helper()
	rootCommand := createRootCommand(deps)
	var output bytes.Buffer
	rootCommand.SetOut(&output)
	rootCommand.SetErr(&output)
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, arguments))
	executeErr := rootCommand.Execute()
	return output.String(), executeErr
}

func TestRunCommand(t *testing.T) {
	testCases := []struct {
		name            string
		arguments       []string
		input           string
		expectFragments []string
		expectCalls     int32
		expectCopied    bool
	}{
		{
			name:            "strict message from arguments",
			arguments:       []string{"run", "/run py\n```\nprint(42)\n```"},
			expectFragments: []string{"Here is your python(3.10.0) output", "42"},
			expectCalls:     1,
		},
		{
			name:            "dot prefix message from input",
			arguments:       []string{"run"},
			input:           "./run python\n```\nprint(42)\n```",
			expectFragments: []string{"Here is your python(3.10.0) output"},
			expectCalls:     1,
		},
		{
			name:            "loose dialect with copy",
			arguments:       []string{"run", "--dialect", "loose", "--copy", "py\n```print(42)```"},
			expectFragments: []string{"Here is your python(3.10.0) output"},
			expectCalls:     1,
			expectCopied:    true,
		},
		{
			name:            "unsupported language is refused",
			arguments:       []string{"run", "/run xx\n```\nprint(42)\n```"},
			expectFragments: []string{"Unsupported language: **xx**"},
			expectCalls:     0,
		},
		{
			name:            "empty message shows help",
			arguments:       []string{"run"},
			expectFragments: []string{"Here are my supported languages", "go, python"},
			expectCalls:     0,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			backend := newFakeBackend(t)
			configurationPath := writeTestConfiguration(t, backend)
			copier := &recordingCopier{}
			deps := dependencies{copier: copier, input: strings.NewReader(testCase.input)}

			arguments := append([]string{"--config", configurationPath}, testCase.arguments...)
			output, executeErr := executeRoot(t, deps, arguments...)
			if executeErr != nil {
				t.Fatalf("execute error: %v\n%s", executeErr, output)
			}
			for _, fragment := range testCase.expectFragments {
				if !strings.Contains(output, fragment) {
					t.Fatalf("expected output to contain %q, got:\n%s", fragment, output)
				}
			}
			if calls := backend.executeCalls.Load(); calls != testCase.expectCalls {
				t.Fatalf("expected %d backend calls, got %d", testCase.expectCalls, calls)
			}
			if testCase.expectCopied != (len(copier.copied) == 1) {
				t.Fatalf("unexpected clipboard writes: %v", copier.copied)
			}
		})
	}
}

func TestRunCommandRunsFile(t *testing.T) {
	backend := newFakeBackend(t)
	configurationPath := writeTestConfiguration(t, backend)
	sourcePath := filepath.Join(t.TempDir(), "script.py")
	if err := os.WriteFile(sourcePath, []byte("print(42)\n"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	output, executeErr := executeRoot(t, dependencies{}, "--config", configurationPath, "run", "--file", sourcePath)
	if executeErr != nil {
		t.Fatalf("execute error: %v", executeErr)
	}
	if !strings.Contains(output, "Here is your python(3.10.0) output") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestRunCommandReportsBackendFailure(t *testing.T) {
	backend := newFakeBackend(t)
	backend.executeStatus = http.StatusBadRequest
	backend.executeBody = `{"message":"runtime is unknown"}`
	configurationPath := writeTestConfiguration(t, backend)

	output, executeErr := executeRoot(t, dependencies{}, "--config", configurationPath, "run", "/run py\n```x```")
	if executeErr == nil {
		t.Fatalf("expected an error for a failing backend")
	}
	if !strings.Contains(output, "API Error `status 400: runtime is unknown` - Please try again later") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestLanguagesCommandListsVersions(t *testing.T) {
	backend := newFakeBackend(t)
	configurationPath := writeTestConfiguration(t, backend)
	output, executeErr := executeRoot(t, dependencies{}, "--config", configurationPath, "languages")
	if executeErr != nil {
		t.Fatalf("execute error: %v", executeErr)
	}
	if output != "go(1.16.2)\npython(3.10.0)\n" {
		t.Fatalf("unexpected languages listing %q", output)
	}
}

func TestConfigInitCommandWritesFile(t *testing.T) {
	homeDirectory := t.TempDir()
	t.Setenv("HOME", homeDirectory)
	t.Setenv("USERPROFILE", homeDirectory)
	output, executeErr := executeRoot(t, dependencies{}, "config", "init", "--global")
	if executeErr != nil {
		t.Fatalf("execute error: %v", executeErr)
	}
	expectedPath := filepath.Join(homeDirectory, ".runbot", "config.yaml")
	if !strings.Contains(output, expectedPath) {
		t.Fatalf("expected output to name %s, got %s", expectedPath, output)
	}
	if _, statErr := os.Stat(expectedPath); statErr != nil {
		t.Fatalf("expected configuration at %s: %v", expectedPath, statErr)
	}
}

func TestServeExecutesCommands(t *testing.T) {
	backend := newFakeBackend(t)
	configurationPath := writeTestConfiguration(t, backend)
	app, appErr := newApplication(applicationOptions{configPath: configurationPath})
	if appErr != nil {
		t.Fatalf("new application: %v", appErr)
	}
	defer app.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addresses := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, app, "127.0.0.1:0", func(address string) { addresses <- address })
	}()

	var address string
	select {
	case address = <-addresses:
	case <-time.After(3 * time.Second):
		t.Fatalf("server address not reported")
	}
	client := http.Client{Timeout: 3 * time.Second}
	waitForReady(t, &client, address)

	testCases := []struct {
		name          string
		command       string
		body          string
		expectStatus  int
		expectErrored bool
		expectOutput  string
	}{
		{
			name:         "strict run with mention",
			command:      "run",
			body:         `{"content":"/run py\n` + "```" + `\nprint(42)\n` + "```" + `","mention":"<@123456789012345678>"}`,
			expectStatus: http.StatusOK,
			expectOutput: "Here is your python(3.10.0) output <@123456789012345678>",
		},
		{
			name:         "context menu run",
			command:      "run",
			body:         `{"content":"py\n` + "```" + `print(42)` + "```" + `","context_menu":true,"source_link":"https://chat.example/1"}`,
			expectStatus: http.StatusOK,
			expectOutput: "Here is your python(3.10.0) output from running: https://chat.example/1",
		},
		{
			name:          "unsupported language",
			command:       "run",
			body:          `{"content":"/run cobol\n` + "```x```" + `"}`,
			expectStatus:  http.StatusOK,
			expectErrored: true,
			expectOutput:  "Unsupported language: **cobol**",
		},
		{
			name:         "file upload",
			command:      "run_file",
			body:         `{"content":"/run","filename":"script.py","data":"cHJpbnQoNDIpCg=="}`,
			expectStatus: http.StatusOK,
			expectOutput: "Here is your python(3.10.0) output",
		},
		{
			name:          "file upload without extension",
			command:       "run_file",
			body:          `{"filename":"script","data":"cHJpbnQoNDIpCg=="}`,
			expectStatus:  http.StatusOK,
			expectErrored: true,
			expectOutput:  "Please provide a source file with a file extension",
		},
		{
			name:         "form",
			command:      "run_form",
			body:         `{"language":"python3","code":"print(42)","args":"a\n\nb"}`,
			expectStatus: http.StatusOK,
			expectOutput: "Here is your python(3.10.0) output",
		},
		{
			name:         "languages",
			command:      "languages",
			body:         `{}`,
			expectStatus: http.StatusOK,
			expectOutput: "go, python",
		},
		{
			name:         "howto",
			command:      "howto",
			body:         `{"invocation":"./run"}`,
			expectStatus: http.StatusOK,
			expectOutput: "./run <language>",
		},
		{
			name:         "malformed payload",
			command:      "run",
			body:         `{"content":`,
			expectStatus: http.StatusBadRequest,
		},
		{
			name:         "unknown dialect",
			command:      "run",
			body:         `{"content":"x","dialect":"fuzzy"}`,
			expectStatus: http.StatusBadRequest,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			response, requestErr := client.Post("http://"+address+"/commands/"+testCase.command, "application/json", strings.NewReader(testCase.body))
			if requestErr != nil {
				t.Fatalf("perform request: %v", requestErr)
			}
			defer response.Body.Close()
			if response.StatusCode != testCase.expectStatus {
				t.Fatalf("expected status %d, got %d", testCase.expectStatus, response.StatusCode)
			}
			if testCase.expectStatus != http.StatusOK {
				return
			}
			var body httpapi.CommandResponse
			if decodeErr := json.NewDecoder(response.Body).Decode(&body); decodeErr != nil {
				t.Fatalf("decode response: %v", decodeErr)
			}
			if body.Errored != testCase.expectErrored {
				t.Fatalf("expected errored %t, got %t (%s)", testCase.expectErrored, body.Errored, body.Output)
			}
			if !strings.Contains(body.Output, testCase.expectOutput) {
				t.Fatalf("expected output to contain %q, got %q", testCase.expectOutput, body.Output)
			}
			if len(body.Segments) == 0 {
				t.Fatalf("expected at least one segment")
			}
		})
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("server shutdown error: %v", err)
	}
}

func TestServeReportsBackendFailureAsGatewayError(t *testing.T) {
	backend := newFakeBackend(t)
	backend.executeBody = "<html></html>"
	configurationPath := writeTestConfiguration(t, backend)
	app, appErr := newApplication(applicationOptions{configPath: configurationPath})
	if appErr != nil {
		t.Fatalf("new application: %v", appErr)
	}
	defer app.close()
	if loadErr := app.loadLanguages(context.Background()); loadErr != nil {
		t.Fatalf("load languages: %v", loadErr)
	}

	server := httptest.NewServer(httpapi.NewServer(httpapi.Config{Executors: commandExecutors(app)}).Handler())
	defer server.Close()

	response, requestErr := server.Client().Post(server.URL+"/commands/run_form", "application/json", strings.NewReader(`{"language":"py","code":"print(1)"}`))
	if requestErr != nil {
		t.Fatalf("perform request: %v", requestErr)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, response.StatusCode)
	}
	var body map[string]string
	if decodeErr := json.NewDecoder(response.Body).Decode(&body); decodeErr != nil {
		t.Fatalf("decode response: %v", decodeErr)
	}
	if body["error"] != "API Error `invalid content type` - Please try again later" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func waitForReady(t *testing.T, client *http.Client, address string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		response, requestErr := client.Get("http://" + address + "/healthz")
		if requestErr == nil {
			response.Body.Close()
			if response.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never became ready", address)
}
