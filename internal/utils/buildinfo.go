// Package utils provides helpers shared by the runbot commands: logging, version lookup, text
// decoding and small string utilities.
package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strings"
)

const (
	unknownVersion = "unknown"
	develVersion   = "(devel)"
)

// Version is set at link time with -ldflags "-X github.com/temirov/runbot/internal/utils.Version=v1.2.3".
var Version = ""

// GetApplicationVersion returns the link-time version, then the module version from build info,
// then git describe output when run from a checkout.
func GetApplicationVersion() string {
	if strings.TrimSpace(Version) != "" {
		return strings.TrimSpace(Version)
	}
	buildInfo, buildInfoAvailable := debug.ReadBuildInfo()
	if buildInfoAvailable && buildInfo.Main.Version != "" && buildInfo.Main.Version != develVersion {
		return buildInfo.Main.Version
	}

	gitDirectoryPath, gitDirectoryError := findGitDirectory(".")
	if gitDirectoryError == nil && gitDirectoryPath != "" {
		for _, arguments := range [][]string{
			{"describe", "--tags", "--exact-match"},
			{"describe", "--tags", "--long", "--dirty"},
		} {
			// #nosec G204
			gitCommand := exec.Command("git", arguments...)
			gitCommand.Dir = gitDirectoryPath
			gitOutput, gitError := gitCommand.Output()
			if gitError == nil && len(gitOutput) > 0 {
				return strings.TrimSpace(string(gitOutput))
			}
		}
	}

	return unknownVersion
}

// findGitDirectory walks up from startDirectory to the directory holding .git.
func findGitDirectory(startDirectory string) (string, error) {
	absoluteStartDirectory, errorAbsolute := filepath.Abs(startDirectory)
	if errorAbsolute != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", startDirectory, errorAbsolute)
	}

	currentDirectory := absoluteStartDirectory
	for {
		fileInformation, errorStat := os.Stat(filepath.Join(currentDirectory, GitDirectoryName))
		if errorStat == nil && fileInformation.IsDir() {
			return currentDirectory, nil
		}
		parentDirectory := filepath.Dir(currentDirectory)
		if parentDirectory == currentDirectory {
			break
		}
		currentDirectory = parentDirectory
	}

	return "", fmt.Errorf(".git directory not found in or above %s", absoluteStartDirectory)
}
