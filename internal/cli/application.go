package cli

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/temirov/runbot/internal/boilerplate"
	"github.com/temirov/runbot/internal/config"
	"github.com/temirov/runbot/internal/execution"
	"github.com/temirov/runbot/internal/formatter"
	"github.com/temirov/runbot/internal/languages"
	"github.com/temirov/runbot/internal/pipeline"
	"github.com/temirov/runbot/internal/services/telemetry"
	"github.com/temirov/runbot/internal/utils"
)

const (
	logMessageCatalogLoaded = "language catalog loaded"
	logMessageCatalogFailed = "language catalog unavailable"
	logFieldLanguages       = "languages"
	logFieldEndpoint        = "endpoint"
)

// application bundles the services every command shares.
type application struct {
	configuration config.ApplicationConfiguration
	logger        *zap.Logger
	registry      *languages.Registry
	catalog       languages.HTTPCatalog
	reporter      *telemetry.Reporter
	pipeline      *pipeline.Pipeline
}

type applicationOptions struct {
	configPath string
	debug      bool
	jsonLogs   bool
}

func newApplication(options applicationOptions) (*application, error) {
	configuration, loadErr := config.LoadApplicationConfiguration(config.LoadOptions{ExplicitFilePath: options.configPath})
	if loadErr != nil {
		return nil, fmt.Errorf("load configuration: %w", loadErr)
	}
	logger, loggerErr := utils.NewApplicationLogger(utils.LoggerOptions{Debug: options.debug, JSON: options.jsonLogs})
	if loggerErr != nil {
		return nil, fmt.Errorf("create logger: %w", loggerErr)
	}
	extensions, extensionsErr := languages.LoadExtensionMap(configuration.Languages.ExtensionsFile)
	if extensionsErr != nil {
		return nil, fmt.Errorf("load extension map: %w", extensionsErr)
	}

	timeout := execution.DefaultTimeout
	if configuration.Backend.Timeout != nil && *configuration.Backend.Timeout > 0 {
		timeout = *configuration.Backend.Timeout
	}
	sharedClient := &http.Client{Timeout: timeout}

	registry := languages.NewRegistry()
	executionClient := execution.NewClient(execution.Options{
		Endpoint:   configuration.Backend.ExecuteURL,
		APIKey:     configuration.Backend.APIKey,
		HTTPClient: sharedClient,
		Logger:     logger,
	})

	var reporter *telemetry.Reporter
	var sink telemetry.Sink = telemetry.Discard{}
	if configuration.TelemetryEnabled() {
		reporter = telemetry.NewReporter(configuration.Backend.LogURL, configuration.Backend.APIKey, sharedClient, logger)
		sink = reporter
	}

	limits := formatter.Limits{}
	if configuration.Limits.MessageCap != nil {
		limits.MessageCap = *configuration.Limits.MessageCap
	}
	if configuration.Limits.MaxOutputLines != nil {
		limits.MaxOutputLines = *configuration.Limits.MaxOutputLines
	}
	var maxFileBytes int64
	if configuration.Limits.MaxFileBytes != nil {
		maxFileBytes = *configuration.Limits.MaxFileBytes
	}

	runPipeline := pipeline.New(pipeline.Options{
		Registry:     registry,
		Executor:     executionClient,
		Preprocessor: boilerplate.NewInjector(),
		Telemetry:    sink,
		Formatter:    formatter.New(limits),
		Extensions:   extensions,
		MaxFileBytes: maxFileBytes,
		Logger:       logger,
	})

	return &application{
		configuration: configuration,
		logger:        logger,
		registry:      registry,
		catalog:       languages.NewHTTPCatalog(configuration.Backend.RuntimesURL, sharedClient),
		reporter:      reporter,
		pipeline:      runPipeline,
	}, nil
}

// loadLanguages fetches the runtime catalog once. A failure leaves the registry empty and is
// returned so one-shot commands can report it; the server only logs it.
func (app *application) loadLanguages(ctx context.Context) error {
	if loadErr := app.registry.Load(ctx, app.catalog); loadErr != nil {
		app.logger.Warn(logMessageCatalogFailed, zap.String(logFieldEndpoint, app.catalog.Endpoint()), zap.Error(loadErr))
		return loadErr
	}
	app.logger.Debug(logMessageCatalogLoaded, zap.Int(logFieldLanguages, len(app.registry.Canonical())))
	return nil
}

// close flushes pending telemetry and the logger.
func (app *application) close() {
	if app.reporter != nil {
		app.reporter.Wait()
	}
	_ = app.logger.Sync()
}
