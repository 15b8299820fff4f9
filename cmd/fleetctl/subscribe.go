package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	mbp "go.gazette.dev/fleetmon/mainboilerplate"
	"go.gazette.dev/fleetmon/monitor/client"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

type cmdSubscribe struct {
	Count  int64  `long:"count" short:"n" required:"true" description:"Number of new subscriptions to allocate"`
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" choice:"json" default:"table" description:"Output format"`
}

func init() {
	commands.AddCommand("", "subscribe", "Request an allocation of new subscriptions", `
Request the allocation of --count new subscriptions across the fleet, as a
subscriber would. The monitor responds with the number of subscriptions to
place with each live broker, which may be negative where a broker is
carrying more than its share.

The monitor's registry is not modified by the request: brokers report the
subscriptions they actually receive.
`, &cmdSubscribe{})
}

func (cmd *cmdSubscribe) Execute([]string) error {
	startup()

	var ctx, cancel = context.WithTimeout(context.Background(), baseCfg.Monitor.Timeout)
	defer cancel()

	var allocs, err = client.RequestAllocation(ctx, baseCfg.Monitor.Address, cmd.Count)
	mbp.Must(err, "failed to request allocation", "count", cmd.Count)

	mbp.Must(writeAllocations(os.Stdout, cmd.Format, allocs), "failed to write output")
	return nil
}

// allocationView is the YAML and JSON representation of an Allocation.
type allocationView struct {
	IP             string `json:"ip" yaml:"ip"`
	SubscriberPort int    `json:"subscriber_port" yaml:"subscriber_port"`
	Delta          int64  `json:"delta" yaml:"delta"`
}

func writeAllocations(w io.Writer, format string, allocs []pb.Allocation) error {
	var views = make([]allocationView, len(allocs))
	for i, a := range allocs {
		views[i] = allocationView{IP: a.Broker.IP, SubscriberPort: a.Broker.SubscriberPort, Delta: a.Delta}
	}

	switch format {
	case "yaml":
		return writeYAML(w, views)
	case "json":
		var enc = json.NewEncoder(w)
		for _, v := range views {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	}

	var table = tablewriter.NewWriter(w)
	table.Header("Broker", "Delta")

	for _, v := range views {
		if err := table.Append([]string{
			net.JoinHostPort(v.IP, strconv.Itoa(v.SubscriberPort)),
			strconv.FormatInt(v.Delta, 10),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
