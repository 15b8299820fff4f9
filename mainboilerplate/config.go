package mainboilerplate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// Version and BuildDate of the program, set by the linker.
var (
	Version   = "development"
	BuildDate = "unknown"
)

// MustParseConfig parses configuration into |parser| from, in increasing
// order of precedence: the first INI file named |configName| found under
// ConfigSearchPaths, environment bindings, and command-line arguments.
// It then executes the selected command. The process exits on any failure.
func MustParseConfig(parser *flags.Parser, configName string) {
	if path, err := parseConfigFile(parser, ConfigSearchPaths(configName)); err != nil {
		fmt.Fprintf(os.Stderr, "parsing %s: %v\n", path, err)
		os.Exit(1)
	}
	MustParseArgs(parser)
}

// ConfigSearchPaths returns candidate paths of INI file |configName|: the
// current working directory, and then the "fleetmon" directory of the
// user's configuration root (~/.config on Linux).
func ConfigSearchPaths(configName string) []string {
	var out = []string{configName}
	if dir, err := os.UserConfigDir(); err == nil {
		out = append(out, filepath.Join(dir, "fleetmon", configName))
	}
	return out
}

// parseConfigFile parses the first of |paths| which exists into |parser|,
// returning the path parsed (if any). Options of the INI file which are
// unknown to |parser| are ignored, so that a single file may serve multiple
// programs.
func parseConfigFile(parser *flags.Parser, paths []string) (string, error) {
	var saved = parser.Options
	parser.Options |= flags.IgnoreUnknown
	defer func() { parser.Options = saved }()

	for _, path := range paths {
		var err = flags.NewIniParser(parser).ParseFile(path)
		if os.IsNotExist(err) {
			continue
		}
		return path, err
	}
	return "", nil
}

// MustParseArgs parses os.Args into |parser| and executes the selected
// command, exiting the process if either fails.
func MustParseArgs(parser *flags.Parser) {
	var _, err = parser.ParseArgs(os.Args[1:])
	if err == nil {
		return
	}

	var flagErr *flags.Error
	if !errors.As(err, &flagErr) {
		Must(err, "command failed")
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		panic(err) // The parsed configuration struct is itself malformed.

	case flags.ErrCommandRequired:
		fmt.Fprintln(os.Stderr)
		writeUsage(parser)

	case flags.ErrHelp:
		if parser.Options&flags.PrintErrors == 0 {
			writeUsage(parser)
		}
		os.Exit(0)
	}
	// go-flags has already printed a description of the input error.
	os.Exit(1)
}

func writeUsage(parser *flags.Parser) {
	parser.WriteHelp(os.Stderr)
	fmt.Fprintf(os.Stderr, "\nVersion %s, built at %s.\n", Version, BuildDate)
}

// AddPrintConfigCmd adds a "print-config" command to |parser|, which writes
// the effective configuration in INI format. Its output is a valid
// |configName| file.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	_, _ = parser.AddCommand("print-config", "Print the combined configuration and exit", `
Print the configuration which results from combining `+configName+`, environment
variables, and flags, as an INI file. Defaults and option descriptions are
included as comments.
`, &printConfig{parser: parser})
}

type printConfig struct {
	parser *flags.Parser
}

func (cmd *printConfig) Execute([]string) error {
	flags.NewIniParser(cmd.parser).Write(os.Stdout,
		flags.IniIncludeDefaults|flags.IniCommentDefaults|flags.IniIncludeComments)
	return nil
}
