package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/temirov/runbot/internal/utils"
)

const (
	environmentKeyAPIKey     = "backend.api_key"
	environmentKeyExecuteURL = "backend.execute_url"
	environmentKeyRuntimes   = "backend.runtimes_url"
	environmentKeyLogURL     = "backend.log_url"
	environmentKeyAddress    = "server.address"
)

var defaultChatPrefixes = []string{"/", "./"}

var environmentKeys = []string{
	environmentKeyAPIKey,
	environmentKeyExecuteURL,
	environmentKeyRuntimes,
	environmentKeyLogURL,
	environmentKeyAddress,
}

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds the settings shared by every runbot command.
type ApplicationConfiguration struct {
	Backend   BackendConfiguration   `mapstructure:"backend"`
	Limits    LimitConfiguration     `mapstructure:"limits"`
	Server    ServerConfiguration    `mapstructure:"server"`
	Languages LanguageConfiguration  `mapstructure:"languages"`
	Telemetry TelemetryConfiguration `mapstructure:"telemetry"`
	Chat      ChatConfiguration      `mapstructure:"chat"`
}

// BackendConfiguration points at the execution backend.
type BackendConfiguration struct {
	ExecuteURL  string         `mapstructure:"execute_url"`
	RuntimesURL string         `mapstructure:"runtimes_url"`
	LogURL      string         `mapstructure:"log_url"`
	APIKey      string         `mapstructure:"api_key"`
	Timeout     *time.Duration `mapstructure:"timeout"`
}

// LimitConfiguration bounds accepted input and produced replies.
type LimitConfiguration struct {
	MaxFileBytes   *int64 `mapstructure:"max_file_bytes"`
	MessageCap     *int   `mapstructure:"message_cap"`
	MaxOutputLines *int   `mapstructure:"max_output_lines"`
}

// ServerConfiguration configures the HTTP adapter.
type ServerConfiguration struct {
	Address string `mapstructure:"address"`
}

// LanguageConfiguration configures language resolution.
type LanguageConfiguration struct {
	ExtensionsFile string `mapstructure:"extensions_file"`
}

// TelemetryConfiguration toggles usage reporting.
type TelemetryConfiguration struct {
	Enabled *bool `mapstructure:"enabled"`
}

// ChatConfiguration lists the command prefixes recognized in chat messages.
type ChatConfiguration struct {
	Prefixes []string `mapstructure:"prefixes"`
}

// TelemetryEnabled reports whether telemetry is on. Telemetry is on unless disabled explicitly.
func (config ApplicationConfiguration) TelemetryEnabled() bool {
	return config.Telemetry.Enabled == nil || *config.Telemetry.Enabled
}

// LoadApplicationConfiguration loads configuration from the global file, then the local or explicit
// file, then RUNBOT_ environment variables. Chat prefixes default to "/" and "./".
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged = merged.Merge(loadEnvironmentOverrides())
	merged.Chat.Prefixes = utils.DeduplicateStrings(merged.Chat.Prefixes)
	if len(merged.Chat.Prefixes) == 0 {
		merged.Chat.Prefixes = append([]string{}, defaultChatPrefixes...)
	}

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// loadEnvironmentOverrides reads RUNBOT_BACKEND_API_KEY style variables. The short forms
// RUNBOT_API_KEY and RUNBOT_EXECUTE_URL are accepted as well.
func loadEnvironmentOverrides() ApplicationConfiguration {
	reader := viper.New()
	reader.SetEnvPrefix(utils.EnvironmentPrefix)
	reader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	reader.AutomaticEnv()
	for _, key := range environmentKeys {
		_ = reader.BindEnv(key)
	}
	_ = reader.BindEnv(environmentKeyAPIKey, utils.EnvironmentPrefix+"_BACKEND_API_KEY", utils.EnvironmentPrefix+"_API_KEY")
	_ = reader.BindEnv(environmentKeyExecuteURL, utils.EnvironmentPrefix+"_BACKEND_EXECUTE_URL", utils.EnvironmentPrefix+"_EXECUTE_URL")

	return ApplicationConfiguration{
		Backend: BackendConfiguration{
			APIKey:      reader.GetString(environmentKeyAPIKey),
			ExecuteURL:  reader.GetString(environmentKeyExecuteURL),
			RuntimesURL: reader.GetString(environmentKeyRuntimes),
			LogURL:      reader.GetString(environmentKeyLogURL),
		},
		Server: ServerConfiguration{Address: reader.GetString(environmentKeyAddress)},
	}
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Backend = result.Backend.merge(override.Backend)
	result.Limits = result.Limits.merge(override.Limits)
	if override.Server.Address != "" {
		result.Server.Address = override.Server.Address
	}
	if override.Languages.ExtensionsFile != "" {
		result.Languages.ExtensionsFile = override.Languages.ExtensionsFile
	}
	if override.Telemetry.Enabled != nil {
		result.Telemetry.Enabled = cloneBool(override.Telemetry.Enabled)
	}
	if len(override.Chat.Prefixes) > 0 {
		result.Chat.Prefixes = append([]string{}, override.Chat.Prefixes...)
	}
	return result
}

func (config BackendConfiguration) merge(override BackendConfiguration) BackendConfiguration {
	result := config
	if override.ExecuteURL != "" {
		result.ExecuteURL = override.ExecuteURL
	}
	if override.RuntimesURL != "" {
		result.RuntimesURL = override.RuntimesURL
	}
	if override.LogURL != "" {
		result.LogURL = override.LogURL
	}
	if override.APIKey != "" {
		result.APIKey = override.APIKey
	}
	if override.Timeout != nil {
		result.Timeout = clonePointer(override.Timeout)
	}
	return result
}

func (config LimitConfiguration) merge(override LimitConfiguration) LimitConfiguration {
	result := config
	if override.MaxFileBytes != nil {
		result.MaxFileBytes = clonePointer(override.MaxFileBytes)
	}
	if override.MessageCap != nil {
		result.MessageCap = clonePointer(override.MessageCap)
	}
	if override.MaxOutputLines != nil {
		result.MaxOutputLines = clonePointer(override.MaxOutputLines)
	}
	return result
}

func cloneBool(value *bool) *bool {
	return clonePointer(value)
}

func clonePointer[T any](value *T) *T {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
