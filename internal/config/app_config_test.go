package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/temirov/runbot/internal/utils"
)

type configTestCase struct {
	name              string
	globalContent     string
	localContent      string
	explicitPath      string
	explicitContent   string
	environment       map[string]string
	expectExecuteURL  string
	expectAPIKey      string
	expectMessageCap  *int
	expectTimeout     *time.Duration
	expectTelemetryOn bool
	expectPrefixes    []string
}

func intPointer(value int) *int {
	pointer := value
	return &pointer
}

func durationPointer(value time.Duration) *time.Duration {
	pointer := value
	return &pointer
}

func TestLoadApplicationConfigurationMergesSources(t *testing.T) {
	testCases := []configTestCase{
		{
			name:              "local_overrides_global",
			globalContent:     "backend:\n  execute_url: https://global.example/execute\n  api_key: global-key\nlimits:\n  message_cap: 1500\ntelemetry:\n  enabled: false\n",
			localContent:      "backend:\n  execute_url: https://local.example/execute\n  timeout: 5s\n",
			expectExecuteURL:  "https://local.example/execute",
			expectAPIKey:      "global-key",
			expectMessageCap:  intPointer(1500),
			expectTimeout:     durationPointer(5 * time.Second),
			expectTelemetryOn: false,
		},
		{
			name:              "explicit_path_replaces_local",
			localContent:      "backend:\n  execute_url: https://local.example/execute\n",
			explicitPath:      "custom.yaml",
			explicitContent:   "backend:\n  execute_url: https://explicit.example/execute\n",
			expectExecuteURL:  "https://explicit.example/execute",
			expectTelemetryOn: true,
		},
		{
			name:              "environment_overrides_files",
			localContent:      "backend:\n  api_key: file-key\n  execute_url: https://local.example/execute\n",
			environment:       map[string]string{"RUNBOT_API_KEY": "env-key", "RUNBOT_BACKEND_EXECUTE_URL": "https://env.example/execute"},
			expectExecuteURL:  "https://env.example/execute",
			expectAPIKey:      "env-key",
			expectTelemetryOn: true,
		},
		{
			name:              "prefixes_deduplicated",
			globalContent:     "chat:\n  prefixes: [\"/\", \" ./\", \"/\", \"\"]\n",
			expectTelemetryOn: true,
			expectPrefixes:    []string{"/", "./"},
		},
		{
			name:              "configured_prefixes_replace_defaults",
			localContent:      "chat:\n  prefixes: [\"!\"]\n",
			expectTelemetryOn: true,
			expectPrefixes:    []string{"!"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			homeDir := t.TempDir()
			workingDir := t.TempDir()
			configDir := filepath.Join(homeDir, utils.GlobalConfigDirectoryName)
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				t.Fatalf("create config dir: %v", err)
			}
			if testCase.globalContent != "" {
				globalPath := filepath.Join(configDir, utils.ConfigFileName)
				if err := os.WriteFile(globalPath, []byte(testCase.globalContent), 0o600); err != nil {
					t.Fatalf("write global config: %v", err)
				}
			}
			if testCase.localContent != "" {
				localPath := filepath.Join(workingDir, utils.ConfigFileName)
				if err := os.WriteFile(localPath, []byte(testCase.localContent), 0o600); err != nil {
					t.Fatalf("write local config: %v", err)
				}
			}
			if testCase.explicitPath != "" {
				target := filepath.Join(workingDir, testCase.explicitPath)
				if err := os.WriteFile(target, []byte(testCase.explicitContent), 0o600); err != nil {
					t.Fatalf("write explicit config: %v", err)
				}
			}

			t.Setenv("HOME", homeDir)
			t.Setenv("USERPROFILE", homeDir)
			for name, value := range testCase.environment {
				t.Setenv(name, value)
			}

			loadedConfig, err := LoadApplicationConfiguration(LoadOptions{
				WorkingDirectory: workingDir,
				ExplicitFilePath: testCase.explicitPath,
			})
			if err != nil {
				t.Fatalf("LoadApplicationConfiguration error: %v", err)
			}

			if loadedConfig.Backend.ExecuteURL != testCase.expectExecuteURL {
				t.Fatalf("expected execute url %q, got %q", testCase.expectExecuteURL, loadedConfig.Backend.ExecuteURL)
			}
			if loadedConfig.Backend.APIKey != testCase.expectAPIKey {
				t.Fatalf("expected api key %q, got %q", testCase.expectAPIKey, loadedConfig.Backend.APIKey)
			}
			if diff := cmp.Diff(testCase.expectMessageCap, loadedConfig.Limits.MessageCap); diff != "" {
				t.Fatalf("message cap mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(testCase.expectTimeout, loadedConfig.Backend.Timeout); diff != "" {
				t.Fatalf("timeout mismatch (-want +got):\n%s", diff)
			}
			if loadedConfig.TelemetryEnabled() != testCase.expectTelemetryOn {
				t.Fatalf("expected telemetry %t", testCase.expectTelemetryOn)
			}
			expectedPrefixes := testCase.expectPrefixes
			if expectedPrefixes == nil {
				expectedPrefixes = []string{"/", "./"}
			}
			if diff := cmp.Diff(expectedPrefixes, loadedConfig.Chat.Prefixes); diff != "" {
				t.Fatalf("prefixes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadApplicationConfigurationRejectsDirectory(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	t.Setenv("USERPROFILE", homeDir)
	workingDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(workingDir, "settings"), 0o755); err != nil {
		t.Fatalf("create directory: %v", err)
	}
	_, err := LoadApplicationConfiguration(LoadOptions{WorkingDirectory: workingDir, ExplicitFilePath: "settings"})
	if err == nil {
		t.Fatalf("expected error for directory configuration path")
	}
}

func TestMergeClonesPointers(t *testing.T) {
	limit := 10
	override := ApplicationConfiguration{Limits: LimitConfiguration{MaxOutputLines: &limit}}
	merged := ApplicationConfiguration{}.Merge(override)
	limit = 99
	if merged.Limits.MaxOutputLines == nil || *merged.Limits.MaxOutputLines != 10 {
		t.Fatalf("merge must not alias override pointers")
	}
}
