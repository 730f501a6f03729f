package grammar

import (
	"fmt"
	"strings"
)

// Dialect selects the grammar applied to a message.
type Dialect int

const (
	// DialectLoose accepts an optional language line followed by a fenced block.
	DialectLoose Dialect = iota
	// DialectStrict is DialectLoose preceded by an invocation marker such as /run.
	DialectStrict
	// DialectFile parses the text accompanying an attached source file; there is no fenced block.
	DialectFile
)

const (
	dialectNameLoose  = "loose"
	dialectNameStrict = "strict"
	dialectNameFile   = "file"

	unknownDialectMessageFormat = "unknown dialect %q (expected %s, %s or %s)"
)

var dialectNames = map[Dialect]string{
	DialectLoose:  dialectNameLoose,
	DialectStrict: dialectNameStrict,
	DialectFile:   dialectNameFile,
}

// String returns the dialect name used by flags and request payloads.
func (dialect Dialect) String() string {
	if name, found := dialectNames[dialect]; found {
		return name
	}
	return fmt.Sprintf("dialect(%d)", int(dialect))
}

// ParseDialect converts a dialect name into a Dialect. An empty name selects DialectStrict.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", dialectNameStrict:
		return DialectStrict, nil
	case dialectNameLoose:
		return DialectLoose, nil
	case dialectNameFile:
		return DialectFile, nil
	default:
		return DialectStrict, fmt.Errorf(unknownDialectMessageFormat, name, dialectNameLoose, dialectNameStrict, dialectNameFile)
	}
}
