package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.gazette.dev/fleetmon/monitor"
)

// FetchFleet returns the FleetStatus served by the monitor at |endpoint|.
func FetchFleet(ctx context.Context, hc *http.Client, endpoint string) (*monitor.FleetStatus, error) {
	var out = new(monitor.FleetStatus)
	if err := getJSON(ctx, hc, endpoint, "/debug/fleet", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchAllocationPlan returns the monitor's AllocationPlan for |n| new
// subscriptions, without placing them.
func FetchAllocationPlan(ctx context.Context, hc *http.Client, endpoint string, n int64) (*monitor.AllocationPlan, error) {
	var out = new(monitor.AllocationPlan)
	var query = url.Values{"count": {strconv.FormatInt(n, 10)}}

	if err := getJSON(ctx, hc, endpoint, "/debug/fleet/allocate", query, out); err != nil {
		return nil, err
	}
	return out, nil
}

func getJSON(ctx context.Context, hc *http.Client, endpoint, path string, query url.Values, out interface{}) error {
	if hc == nil {
		hc = http.DefaultClient
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	var u, err = url.Parse(endpoint)
	if err != nil {
		return errors.Wrapf(err, "parsing endpoint %q", endpoint)
	}
	u.Path, u.RawQuery = path, query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body, _ = io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: %s (%s)", u, resp.Status, strings.TrimSpace(string(body)))
	} else if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s", u)
	}
	return nil
}
