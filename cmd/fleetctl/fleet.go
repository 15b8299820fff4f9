package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	mbp "go.gazette.dev/fleetmon/mainboilerplate"
	"go.gazette.dev/fleetmon/monitor"
	"go.gazette.dev/fleetmon/monitor/client"
	"gopkg.in/yaml.v2"
)

type cmdFleetList struct {
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" choice:"json" default:"table" description:"Output format"`
}

type cmdFleetAllocate struct {
	Count  int64  `long:"count" short:"n" required:"true" description:"Number of new subscriptions to preview"`
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" choice:"json" default:"table" description:"Output format"`
}

func init() {
	commands.AddCommand("fleet", "list", "List registered brokers", `
List the brokers currently registered with the monitor, along with the
subscriptions each has reported and when it joined.

Results can be output in a variety of --format options:
yaml:  Prints the fleet as a YAML document.
json:  Prints the fleet as a JSON document.
table: Prints as a table.
`, &cmdFleetList{})

	commands.AddCommand("fleet", "allocate", "Preview an allocation of new subscriptions", `
Preview the allocation the monitor would make of --count new subscriptions,
without requesting it. Each broker's current subscriptions, allocated delta,
and resulting subscriptions are shown, under the monitor's overshoot policy.
`, &cmdFleetAllocate{})
}

func (cmd *cmdFleetList) Execute([]string) error {
	startup()

	var ctx, cancel = context.WithTimeout(context.Background(), baseCfg.Monitor.Timeout)
	defer cancel()

	var status, err = client.FetchFleet(ctx, nil, baseCfg.Monitor.Address)
	mbp.Must(err, "failed to fetch fleet")

	mbp.Must(writeFleet(os.Stdout, cmd.Format, status, time.Now()), "failed to write output")
	return nil
}

func (cmd *cmdFleetAllocate) Execute([]string) error {
	startup()

	var ctx, cancel = context.WithTimeout(context.Background(), baseCfg.Monitor.Timeout)
	defer cancel()

	var plan, err = client.FetchAllocationPlan(ctx, nil, baseCfg.Monitor.Address, cmd.Count)
	mbp.Must(err, "failed to fetch allocation plan", "count", cmd.Count)

	mbp.Must(writePlan(os.Stdout, cmd.Format, plan), "failed to write output")
	return nil
}

func writeFleet(w io.Writer, format string, status *monitor.FleetStatus, now time.Time) error {
	switch format {
	case "yaml":
		return writeYAML(w, status)
	case "json":
		return json.NewEncoder(w).Encode(status)
	}

	var table = tablewriter.NewWriter(w)
	table.Header("Broker", "Peer", "Subscriptions", "Joined")

	for _, b := range status.Brokers {
		if err := table.Append([]string{
			b.SubscriberEndpoint(),
			b.PeerEndpoint(),
			humanize.Comma(b.Subscriptions),
			humanize.RelTime(b.JoinedAt, now, "ago", "from now"),
		}); err != nil {
			return err
		}
	}
	if err := table.Append([]string{"Total", "", humanize.Comma(status.Total), ""}); err != nil {
		return err
	}
	return table.Render()
}

func writePlan(w io.Writer, format string, plan *monitor.AllocationPlan) error {
	switch format {
	case "yaml":
		return writeYAML(w, plan)
	case "json":
		return json.NewEncoder(w).Encode(plan)
	}

	var table = tablewriter.NewWriter(w)
	table.Header("Broker", "Current", "Delta", "Final")

	for _, a := range plan.Allocations {
		if err := table.Append([]string{
			a.SubscriberEndpoint(),
			humanize.Comma(a.Current),
			strconv.FormatInt(a.Delta, 10),
			humanize.Comma(a.Final),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeYAML(w io.Writer, v interface{}) error {
	var b, err = yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
