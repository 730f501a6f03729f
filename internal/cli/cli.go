// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/runbot/internal/config"
	"github.com/temirov/runbot/internal/formatter"
	"github.com/temirov/runbot/internal/grammar"
	"github.com/temirov/runbot/internal/pipeline"
	"github.com/temirov/runbot/internal/services/clipboard"
	"github.com/temirov/runbot/internal/services/httpapi"
	"github.com/temirov/runbot/internal/utils"
)

const (
	versionFlagName      = "version"
	configFlagName       = "config"
	debugFlagName        = "debug"
	dialectFlagName      = "dialect"
	fileFlagName         = "file"
	languageFlagName     = "language"
	outputSyntaxFlagName = "output"
	mentionFlagName      = "mention"
	echoFlagName         = "echo"
	copyFlagName         = "copy"
	addressFlagName      = "address"
	globalFlagName       = "global"
	forceFlagName        = "force"

	versionTemplate      = "runbot version: %s\n"
	rootUse              = utils.ApplicationName
	rootShortDescription = "runbot command line interface"
	rootLongDescription  = `runbot runs code snippets taken from chat messages on a Piston execution backend.
It parses the message, resolves the language, wraps bare snippets into programs and formats the output
into chat sized messages. Use --config to select a configuration file and --version to print the application version.`

	runUse              = "run [message...]"
	runShortDescription = "run a chat message"
	runLongDescription  = `Run the code in a chat message. The message is taken from the arguments or, when none are given,
from standard input. Use --file to run a source file with the message as its accompanying text.`
	runUsageExample = `  # Run a strict message
  runbot run $'/run python\n` + "```" + `\nprint(42)\n` + "```" + `'

  # Run a file with two arguments
  runbot run --file main.go $'/run\n-v\n--fast'`

	languagesUse              = "languages"
	languagesShortDescription = "list supported languages"
	serveUse                  = "serve"
	serveShortDescription     = "serve run commands over HTTP"
	configUse                 = "config"
	configShortDescription    = "manage configuration"
	configInitUse             = "init"
	configInitDescription     = "write the default configuration file"

	versionFlagDescription      = "display application version"
	configFlagDescription       = "configuration file path"
	debugFlagDescription        = "enable debug logging"
	dialectFlagDescription      = "message grammar: strict, loose or file"
	fileFlagDescription         = "source file to run"
	languageFlagDescription     = "language overriding the message"
	outputSyntaxFlagDescription = "syntax highlighting hint for the output block"
	mentionFlagDescription      = "mention prepended to the reply"
	echoFlagDescription         = "echo the submitted source above the output"
	copyFlagDescription         = "copy the reply to the system clipboard"
	addressFlagDescription      = "listen address (overrides server.address)"
	globalFlagDescription       = "write the global configuration"
	forceFlagDescription        = "overwrite an existing configuration"

	listeningTemplate         = "runbot listening on %s\n"
	configWrittenTemplate     = "configuration written to %s\n"
	runFailedFormat           = "run: %w"
	loadLanguagesFailedFormat = "load languages: %w"
	attachmentFailedFormat    = "open source file: %w"
	readInputFailedFormat     = "read message: %w"
	copyFailedFormat          = "copy reply: %w"
	messageArgumentJoiner     = " "
	segmentPrinterSeparator   = "\n"
)

// dependencies are the process resources commands touch besides the network.
type dependencies struct {
	copier clipboard.Copier
	input  io.Reader
}

type rootOptions struct {
	configPath string
	debug      bool
}

func (options rootOptions) applicationOptions(jsonLogs bool) applicationOptions {
	return applicationOptions{configPath: options.configPath, debug: options.debug, jsonLogs: jsonLogs}
}

// Execute runs the runbot application.
func Execute() error {
	rootCommand := createRootCommand(dependencies{copier: clipboard.NewService(), input: os.Stdin})
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, os.Args[1:]))
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand(deps dependencies) *cobra.Command {
	var showVersion bool
	options := &rootOptions{}

	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescription,
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().StringVar(&options.configPath, configFlagName, "", configFlagDescription)
	registerToggleFlags(rootCommand.PersistentFlags(), toggleFlag{target: &options.debug, name: debugFlagName, usage: debugFlagDescription})
	rootCommand.AddCommand(
		createRunCommand(options, deps),
		createLanguagesCommand(options),
		createServeCommand(options),
		createConfigCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

type runOptions struct {
	dialect      grammar.Dialect
	filePath     string
	language     string
	outputSyntax string
	mention      string
	echoSource   bool
	copyEnabled  bool
}

// createRunCommand returns the run subcommand.
func createRunCommand(options *rootOptions, deps dependencies) *cobra.Command {
	var runConfiguration runOptions

	runCommand := &cobra.Command{
		Use:     runUse,
		Short:   runShortDescription,
		Long:    runLongDescription,
		Example: runUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			content, contentErr := readMessage(arguments, deps.input, runConfiguration.filePath != "")
			if contentErr != nil {
				return fmt.Errorf(readInputFailedFormat, contentErr)
			}
			app, appErr := newApplication(options.applicationOptions(false))
			if appErr != nil {
				return appErr
			}
			defer app.close()
			return runMessage(command.Context(), app, deps, runConfiguration, content, command.OutOrStdout())
		},
	}

	registerDialectFlag(runCommand.Flags(), &runConfiguration.dialect)
	runCommand.Flags().StringVar(&runConfiguration.filePath, fileFlagName, "", fileFlagDescription)
	runCommand.Flags().StringVar(&runConfiguration.language, languageFlagName, "", languageFlagDescription)
	runCommand.Flags().StringVar(&runConfiguration.outputSyntax, outputSyntaxFlagName, "", outputSyntaxFlagDescription)
	runCommand.Flags().StringVar(&runConfiguration.mention, mentionFlagName, "", mentionFlagDescription)
	registerToggleFlags(
		runCommand.Flags(),
		toggleFlag{target: &runConfiguration.echoSource, name: echoFlagName, usage: echoFlagDescription},
		toggleFlag{target: &runConfiguration.copyEnabled, name: copyFlagName, usage: copyFlagDescription},
	)
	return runCommand
}

// runMessage loads the language catalog, runs content and prints the reply segments. An empty
// message prints the usage help.
func runMessage(ctx context.Context, app *application, deps dependencies, runConfiguration runOptions, content string, writer io.Writer) error {
	loadErr := app.loadLanguages(ctx)
	if strings.TrimSpace(content) == "" && runConfiguration.filePath == "" {
		_, writeErr := fmt.Fprintln(writer, formatter.Howto(app.registry.Canonical(), ""))
		return writeErr
	}
	if loadErr != nil {
		return fmt.Errorf(loadLanguagesFailedFormat, loadErr)
	}

	invocation := pipeline.Invocation{
		Dialect:          runConfiguration.dialect,
		Content:          grammar.NormalizePrefix(content, app.configuration.Chat.Prefixes),
		LanguageOverride: runConfiguration.language,
		OutputSyntax:     runConfiguration.outputSyntax,
		Caller:           pipeline.Caller{Mention: runConfiguration.mention},
		MentionCaller:    strings.TrimSpace(runConfiguration.mention) != "",
		EchoSource:       runConfiguration.echoSource,
	}
	if runConfiguration.filePath != "" {
		attachment, attachmentErr := pipeline.NewFileAttachment(runConfiguration.filePath)
		if attachmentErr != nil {
			return fmt.Errorf(attachmentFailedFormat, attachmentErr)
		}
		invocation.Dialect = grammar.DialectFile
		invocation.Attachment = attachment
	}

	reply, runErr := app.pipeline.Run(ctx, invocation)
	if runErr != nil {
		fmt.Fprintln(writer, pipeline.UserMessage(runErr))
		return fmt.Errorf(runFailedFormat, runErr)
	}
	segments := replySegments(app.pipeline.Formatter(), reply)
	if _, writeErr := fmt.Fprintln(writer, strings.Join(segments, segmentPrinterSeparator)); writeErr != nil {
		return writeErr
	}
	if runConfiguration.copyEnabled && deps.copier != nil {
		if copyErr := deps.copier.Copy(reply.Text()); copyErr != nil {
			return fmt.Errorf(copyFailedFormat, copyErr)
		}
	}
	return nil
}

// readMessage joins arguments into the message. Without arguments the message comes from input,
// unless input is a terminal or the message accompanies a file.
func readMessage(arguments []string, input io.Reader, accompaniesFile bool) (string, error) {
	if len(arguments) > 0 {
		return strings.Join(arguments, messageArgumentJoiner), nil
	}
	if input == nil || accompaniesFile || isTerminal(input) {
		return "", nil
	}
	content, readErr := io.ReadAll(input)
	if readErr != nil {
		return "", readErr
	}
	return string(content), nil
}

func isTerminal(input io.Reader) bool {
	file, isFile := input.(*os.File)
	if !isFile {
		return false
	}
	information, statErr := file.Stat()
	if statErr != nil {
		return false
	}
	return information.Mode()&os.ModeCharDevice != 0
}

// createLanguagesCommand returns the languages subcommand.
func createLanguagesCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   languagesUse,
		Short: languagesShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			app, appErr := newApplication(options.applicationOptions(false))
			if appErr != nil {
				return appErr
			}
			defer app.close()
			if loadErr := app.loadLanguages(command.Context()); loadErr != nil {
				return fmt.Errorf(loadLanguagesFailedFormat, loadErr)
			}
			for _, name := range app.registry.Canonical() {
				entry, _ := app.registry.Resolve(name)
				fmt.Fprintln(command.OutOrStdout(), entry.String())
			}
			return nil
		},
	}
}

// createServeCommand returns the serve subcommand.
func createServeCommand(options *rootOptions) *cobra.Command {
	var address string

	serveCommand := &cobra.Command{
		Use:   serveUse,
		Short: serveShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			app, appErr := newApplication(options.applicationOptions(true))
			if appErr != nil {
				return appErr
			}
			defer app.close()
			if address == "" {
				address = app.configuration.Server.Address
			}
			signalContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			writer := command.OutOrStdout()
			return serve(signalContext, app, address, func(boundAddress string) {
				fmt.Fprintf(writer, listeningTemplate, boundAddress)
			})
		},
	}
	serveCommand.Flags().StringVar(&address, addressFlagName, "", addressFlagDescription)
	return serveCommand
}

// serve runs the HTTP adapter while the language catalog loads in the background. Requests that
// arrive before the catalog is loaded are refused as unsupported languages.
func serve(ctx context.Context, app *application, address string, notify func(string)) error {
	server := httpapi.NewServer(httpapi.Config{
		Address:      address,
		Capabilities: commandCapabilities(),
		Executors:    commandExecutors(app),
		Ready:        app.registry.Ready,
		Logger:       app.logger,
	})
	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		_ = app.loadLanguages(groupContext)
		return nil
	})
	group.Go(func() error {
		return server.Run(groupContext, notify)
	})
	return group.Wait()
}

// createConfigCommand returns the config subcommand tree.
func createConfigCommand() *cobra.Command {
	var global bool
	var force bool

	configCommand := &cobra.Command{
		Use:   configUse,
		Short: configShortDescription,
	}
	initCommand := &cobra.Command{
		Use:   configInitUse,
		Short: configInitDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			path, initErr := config.InitializeConfiguration(config.InitOptions{Target: target, Force: force})
			if initErr != nil {
				return initErr
			}
			fmt.Fprintf(command.OutOrStdout(), configWrittenTemplate, path)
			return nil
		},
	}
	registerToggleFlags(
		initCommand.Flags(),
		toggleFlag{target: &global, name: globalFlagName, usage: globalFlagDescription},
		toggleFlag{target: &force, name: forceFlagName, usage: forceFlagDescription},
	)
	configCommand.AddCommand(initCommand)
	return configCommand
}
