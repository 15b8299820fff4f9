package mainboilerplate

import (
	"net"
	"os"
	"strconv"

	petname "github.com/dustinkirkland/golang-petname"
	"go.gazette.dev/fleetmon/server"
)

// ServiceConfig represents identification and addressing configuration of the process.
type ServiceConfig struct {
	ID    string `long:"id" env:"ID" description:"Unique ID of this process. Auto-generated if not set"`
	Iface string `long:"iface" env:"IFACE" default:"" description:"Network interface to bind. All interfaces are bound if not set"`
	Host  string `long:"host" env:"HOST" description:"Addressable, advertised hostname or IP of this process. Hostname is used if not set"`
	Port  uint16 `long:"port" env:"PORT" default:"8080" description:"Service port for monitor protocol and HTTP requests. A random port is used if zero"`
}

// Resolve fills in an unset ID and Host of the ServiceConfig.
func (cfg *ServiceConfig) Resolve() {
	if cfg.ID == "" {
		cfg.ID = petname.Generate(2, "-")
	}
	if cfg.Host == "" {
		var err error
		cfg.Host, err = os.Hostname()
		Must(err, "failed to determine hostname")
	}
}

// AdvertisedEndpoint is the host:port at which brokers and subscribers
// reach this process through |srv|.
func (cfg ServiceConfig) AdvertisedEndpoint(srv *server.Server) string {
	var port = cfg.Port
	if addr, ok := srv.RawListener.Addr().(*net.TCPAddr); ok {
		port = uint16(addr.Port)
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(int(port)))
}
