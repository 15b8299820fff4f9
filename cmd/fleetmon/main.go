package main

import (
	"context"
	"syscall"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/fleetmon/mainboilerplate"
	"go.gazette.dev/fleetmon/monitor"
	"go.gazette.dev/fleetmon/server"
	"go.gazette.dev/fleetmon/task"
)

const iniFilename = "fleetmon.ini"

// Config is the top-level configuration object of the fleet monitor.
var Config = new(struct {
	Fleetmon mbp.ServiceConfig `group:"Fleetmon" namespace:"fleetmon" env-namespace:"FLEETMON"`

	Monitor struct {
		monitor.Config
		Server server.Config
	} `group:"Monitor" namespace:"monitor" env-namespace:"MONITOR"`

	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type serveMonitor struct{}

func (serveMonitor) Execute(args []string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	mbp.InitLog(Config.Log)
	Config.Fleetmon.Resolve()

	log.WithField("config", Config).Info("starting fleet monitor")

	var srv, err = server.New(Config.Fleetmon.Iface, Config.Fleetmon.Port, Config.Monitor.Server)
	mbp.Must(err, "building Server instance")

	mon, err := monitor.New(Config.Monitor.Config)
	mbp.Must(err, "building Monitor instance")
	mon.RegisterHTTP(srv.HTTPMux)

	var tasks = task.NewGroup(context.Background())
	srv.QueueTasks(tasks)
	mon.QueueTasks(tasks, srv.MonitorListener)

	// Install signal handler & start monitor tasks.
	tasks.QueueCancelOnSignal(syscall.SIGTERM, syscall.SIGINT)
	tasks.GoRun()

	log.WithFields(log.Fields{
		"id":       Config.Fleetmon.ID,
		"endpoint": Config.Fleetmon.AdvertisedEndpoint(srv),
	}).Info("fleet monitor listening")

	// Block until all tasks complete. Assert none returned an error.
	mbp.Must(tasks.Wait(), "monitor task failed")
	log.Info("goodbye")

	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve as the fleet monitor", `
Serve the fleet monitor with the provided configuration, until signaled to
exit (via SIGTERM or SIGINT). Brokers and subscribers connect to the service
port using the monitor line protocol, while HTTP requests of the same port
are served diagnostics and the /debug/fleet API.

The monitor holds all state in memory. Upon exit every broker session is
closed, and brokers are expected to reconnect to a restarted monitor.
`, &serveMonitor{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
