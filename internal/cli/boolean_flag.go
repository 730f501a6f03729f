package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	booleanFlagTypeName               = "bool"
	booleanFlagTrueLiteral            = "true"
	booleanFlagAcceptedValuesListing  = "true, false, yes, no, on, off, 1, 0"
	booleanFlagInvalidValueErrorLabel = "invalid boolean value"
)

var booleanFlagLiterals = map[string]bool{
	"true":  true,
	"t":     true,
	"1":     true,
	"yes":   true,
	"y":     true,
	"on":    true,
	"false": false,
	"f":     false,
	"0":     false,
	"no":    false,
	"n":     false,
	"off":   false,
}

// toggleFlag describes a boolean flag accepting yes/no style literals.
type toggleFlag struct {
	target       *bool
	name         string
	defaultValue bool
	usage        string
}

type booleanFlagValue struct {
	target  *bool
	flagKey string
}

func (value *booleanFlagValue) Set(input string) error {
	if value == nil || value.target == nil {
		return fmt.Errorf("%s %q", booleanFlagInvalidValueErrorLabel, input)
	}
	parsed, ok := parseBooleanLiteral(input)
	if !ok {
		return fmt.Errorf("%s %q for --%s; accepted values: %s", booleanFlagInvalidValueErrorLabel, input, value.flagKey, booleanFlagAcceptedValuesListing)
	}
	*value.target = parsed
	return nil
}

func (value *booleanFlagValue) String() string {
	if value == nil || value.target == nil {
		return strconv.FormatBool(false)
	}
	return strconv.FormatBool(*value.target)
}

func (value *booleanFlagValue) Type() string {
	return booleanFlagTypeName
}

func parseBooleanLiteral(input string) (bool, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		normalized = booleanFlagTrueLiteral
	}
	parsed, ok := booleanFlagLiterals[normalized]
	return parsed, ok
}

func registerToggleFlags(flagSet *pflag.FlagSet, toggles ...toggleFlag) {
	if flagSet == nil {
		return
	}
	for _, toggle := range toggles {
		if toggle.target == nil {
			continue
		}
		*toggle.target = toggle.defaultValue
		flagSet.Var(&booleanFlagValue{target: toggle.target, flagKey: toggle.name}, toggle.name, toggle.usage)
		if lookup := flagSet.Lookup(toggle.name); lookup != nil {
			lookup.DefValue = strconv.FormatBool(toggle.defaultValue)
			lookup.NoOptDefVal = booleanFlagTrueLiteral
		}
	}
}

// normalizeBooleanFlagArguments joins "--copy no" into "--copy=no" so a literal following a toggle
// is not taken for chat content.
func normalizeBooleanFlagArguments(command *cobra.Command, arguments []string) []string {
	if command == nil || len(arguments) == 0 {
		return arguments
	}
	booleanFlags := map[string]struct{}{}
	collectBooleanFlagNames(command, booleanFlags)
	if len(booleanFlags) == 0 {
		return arguments
	}
	normalized := make([]string, 0, len(arguments))
	index := 0
	for index < len(arguments) {
		currentArgument := arguments[index]
		if currentArgument == "--" {
			normalized = append(normalized, arguments[index:]...)
			break
		}
		if strings.HasPrefix(currentArgument, "--") && !strings.Contains(currentArgument, "=") && index+1 < len(arguments) {
			flagName := strings.TrimPrefix(currentArgument, "--")
			nextArgument := arguments[index+1]
			if _, exists := booleanFlags[flagName]; exists && !strings.HasPrefix(nextArgument, "-") {
				if _, valid := booleanFlagLiterals[strings.ToLower(strings.TrimSpace(nextArgument))]; valid {
					normalized = append(normalized, fmt.Sprintf("--%s=%s", flagName, nextArgument))
					index += 2
					continue
				}
			}
		}
		normalized = append(normalized, currentArgument)
		index++
	}
	return normalized
}

func collectBooleanFlagNames(command *cobra.Command, target map[string]struct{}) {
	if command == nil || target == nil {
		return
	}
	visit := func(flagSet *pflag.FlagSet) {
		flagSet.VisitAll(func(flag *pflag.Flag) {
			if flag.Value != nil && flag.Value.Type() == booleanFlagTypeName {
				target[flag.Name] = struct{}{}
			}
		})
	}
	visit(command.PersistentFlags())
	visit(command.Flags())
	for _, child := range command.Commands() {
		collectBooleanFlagNames(child, target)
	}
}
