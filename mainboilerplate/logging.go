package mainboilerplate

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
	Caller bool   `long:"caller" env:"CALLER" description:"Annotate log events with their calling function"`
}

// InitLog configures the standard logger from the LogConfig.
func InitLog(cfg LogConfig) {
	var lvl, err = log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	}
	log.SetLevel(lvl)
	log.SetReportCaller(cfg.Caller)
	log.SetFormatter(newFormatter(cfg.Format))
}

func newFormatter(format string) log.Formatter {
	switch format {
	case "json":
		return &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	case "color":
		return &log.TextFormatter{ForceColors: true, FullTimestamp: true}
	default:
		return &log.TextFormatter{FullTimestamp: true}
	}
}
