package main

import (
	"time"

	"github.com/jessevdk/go-flags"
	mbp "go.gazette.dev/fleetmon/mainboilerplate"
)

const iniFilename = "fleetctl.ini"

var (
	baseCfg = new(struct {
		Monitor struct {
			Address string        `long:"address" env:"ADDRESS" default:"localhost:8080" description:"Service endpoint of the fleet monitor"`
			Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"Timeout of one-shot requests to the monitor"`
		} `group:"Monitor" namespace:"monitor" env-namespace:"MONITOR"`

		Log mbp.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
	})

	// commands are registered by the init functions of each sub-command.
	commands = mbp.NewCommandRegistry()
)

// fleetCfg is the (empty) configuration of the "fleet" parent command.
var fleetCfg = new(struct{})

func startup() {
	mbp.InitLog(baseCfg.Log)
}

func main() {
	var parser = flags.NewParser(baseCfg, flags.Default)

	parser.LongDescription = `fleetctl is a tool for interacting with a fleet monitor.

It can attach to the monitor as a broker or a subscriber, as well as inspect
the monitor's view of the broker fleet.

See --help pages of each sub-command for documentation and usage examples.
Optionally configure fleetctl with a '` + iniFilename + `' file in the current working
directory, or with '~/.config/fleetmon/` + iniFilename + `'. Use the 'print-config'
sub-command to inspect the tool's current configuration.
`

	mbp.AddPrintConfigCmd(parser, iniFilename)

	_, err := parser.AddCommand("fleet", "Inspect the broker fleet", "", fleetCfg)
	mbp.Must(err, "failed to add command")

	// Add all registered commands to the root parser.Command
	mbp.Must(commands.AddCommands("", parser.Command), "could not add subcommand")

	mbp.MustParseConfig(parser, iniFilename)
}
