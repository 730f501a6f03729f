package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/runbot/internal/cli"
	"github.com/temirov/runbot/internal/utils"
)

// main is the entry point for the runbot command.
func main() {
	loggerInstance, loggerInitializationError := utils.NewApplicationLogger(utils.LoggerOptions{})
	if loggerInitializationError != nil {
		panic(fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerInitializationError))
	}
	defer loggerInstance.Sync()
	if applicationExecutionError := cli.Execute(); applicationExecutionError != nil {
		loggerInstance.Fatal(utils.ApplicationExecutionFailedMessage, zap.Error(applicationExecutionError))
	}
}
