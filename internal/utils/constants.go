package utils

const (
	// ApplicationName is the binary and configuration namespace.
	ApplicationName = "runbot"
	// GlobalConfigDirectoryName is the per-user configuration directory inside the home directory.
	GlobalConfigDirectoryName = ".runbot"
	// ConfigFileName is the configuration file looked up in the global directory and the working directory.
	ConfigFileName = "config.yaml"
	// EnvironmentPrefix prefixes environment variable overrides, e.g. RUNBOT_API_KEY.
	EnvironmentPrefix = "RUNBOT"
	// GitDirectoryName is the name of the Git repository directory.
	GitDirectoryName = ".git"
)

const (
	// LoggerInitializationFailedMessageFormat reports a logger that could not be built.
	LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"
	// ApplicationExecutionFailedMessage prefixes a failed command in the process log.
	ApplicationExecutionFailedMessage = "runbot command failed"
)
