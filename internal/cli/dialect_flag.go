package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/temirov/runbot/internal/grammar"
)

const (
	dialectFlagTypeName            = "dialect"
	invalidDialectFlagValueMessage = "invalid dialect flag value '%s' (expected strict, loose or file)"
)

var dialectFlagLiterals = map[string]grammar.Dialect{
	"":       grammar.DialectStrict,
	"strict": grammar.DialectStrict,
	"s":      grammar.DialectStrict,
	"loose":  grammar.DialectLoose,
	"l":      grammar.DialectLoose,
	"file":   grammar.DialectFile,
	"f":      grammar.DialectFile,
}

func interpretDialectFlagLiteral(input string) (grammar.Dialect, bool) {
	dialect, matches := dialectFlagLiterals[strings.ToLower(strings.TrimSpace(input))]
	return dialect, matches
}

type dialectFlagValue struct {
	target *grammar.Dialect
}

func (value *dialectFlagValue) Set(input string) error {
	if value == nil || value.target == nil {
		return fmt.Errorf(invalidDialectFlagValueMessage, input)
	}
	dialect, ok := interpretDialectFlagLiteral(input)
	if !ok {
		return fmt.Errorf(invalidDialectFlagValueMessage, input)
	}
	*value.target = dialect
	return nil
}

func (value *dialectFlagValue) String() string {
	if value == nil || value.target == nil {
		return grammar.DialectStrict.String()
	}
	return value.target.String()
}

func (value *dialectFlagValue) Type() string {
	return dialectFlagTypeName
}

func registerDialectFlag(flagSet *pflag.FlagSet, target *grammar.Dialect) {
	if flagSet == nil || target == nil {
		return
	}
	*target = grammar.DialectStrict
	flagSet.Var(&dialectFlagValue{target: target}, dialectFlagName, dialectFlagDescription)
}
