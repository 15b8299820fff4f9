// Package mainboilerplate holds the process plumbing shared by fleetmon
// programs: configuration parsing, logging, diagnostics, and handling of
// fatal errors.
package mainboilerplate

import (
	_ "expvar" // Registers /debug/vars.
	"fmt"
	"net/http"
	_ "net/http/pprof" // Registers /debug/pprof/.
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/trace"
)

// DiagnosticsConfig configures the debugging endpoints of the process.
type DiagnosticsConfig struct {
	Traces bool `long:"traces" env:"TRACES" description:"Serve /debug/requests and /debug/events to non-local clients"`
}

// InitDiagnosticsAndRecover registers diagnostics on http.DefaultServeMux
// and returns a function to be deferred by main, which writes a recovered
// panic to the Kubernetes termination log before re-panicking.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	RegisterDiagnostics(http.DefaultServeMux, cfg)
	return recoverToTerminationLog
}

// RegisterDiagnostics registers a /debug/ready liveness check and
// /debug/metrics Prometheus exposition on |mux|. Packages expvar,
// net/http/pprof and x/net/trace register their own /debug handlers on
// http.DefaultServeMux.
func RegisterDiagnostics(mux *http.ServeMux, cfg DiagnosticsConfig) {
	if cfg.Traces {
		trace.AuthRequest = func(*http.Request) (bool, bool) { return true, true }
	}
	mux.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, "ready (version %s)\n", Version)
	})
	mux.Handle("/debug/metrics", promhttp.Handler())
}

func recoverToTerminationLog() {
	var r = recover()
	if r == nil {
		return
	}
	// Best effort. See https://github.com/kubernetes/kubernetes/issues/31839
	if f, err := os.OpenFile(k8sTerminationLog, os.O_WRONLY, 0); err == nil {
		_, _ = fmt.Fprintf(f, "%+v", r)
		_ = f.Close()
	}
	panic(r)
}

// Must logs and panics if |err| is non-nil. |extra| are alternating keys
// and values of additional log fields.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for ; len(extra) >= 2; extra = extra[2:] {
		fields[fmt.Sprint(extra[0])] = extra[1]
	}
	log.WithFields(fields).Panic(msg)
}

// k8sTerminationLog is read by Kubernetes as the reason a container exited.
const k8sTerminationLog = "/dev/termination-log"
