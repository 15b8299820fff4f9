package protocol

import (
	"fmt"
	"net"
	"strconv"
)

// BrokerID identifies a broker of the fleet by the two endpoints it exposes:
// SubscriberPort, to which subscribers are redirected, and PeerPort, to which
// peer brokers connect for membership gossip. Two brokers of the same host
// having different ports are distinct. BrokerID is comparable and is used
// directly as a map key.
type BrokerID struct {
	IP             string `json:"ip" yaml:"ip"`
	SubscriberPort int    `json:"subscriber_port" yaml:"subscriber_port"`
	PeerPort       int    `json:"peer_port" yaml:"peer_port"`
}

// NewBrokerID builds a BrokerID from the |remote| address of a broker
// connection and the ports which the broker declared during its handshake.
func NewBrokerID(remote net.Addr, subscriberPort, peerPort int) BrokerID {
	return BrokerID{
		IP:             HostOf(remote),
		SubscriberPort: subscriberPort,
		PeerPort:       peerPort,
	}
}

// HostOf returns the bare host (without port) of |addr|.
func HostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}

// Validate returns an error if the BrokerID is not well-formed.
func (id BrokerID) Validate() error {
	if id.IP == "" {
		return ExtendContext(NewValidationError("expected IP"), "IP")
	} else if err := ValidatePort(id.SubscriberPort); err != nil {
		return ExtendContext(err, "SubscriberPort")
	} else if err = ValidatePort(id.PeerPort); err != nil {
		return ExtendContext(err, "PeerPort")
	}
	return nil
}

// Less returns whether the BrokerID is less than |other| under
// (IP, SubscriberPort, PeerPort) ordering.
func (id BrokerID) Less(other BrokerID) bool {
	if id.IP != other.IP {
		return id.IP < other.IP
	} else if id.SubscriberPort != other.SubscriberPort {
		return id.SubscriberPort < other.SubscriberPort
	}
	return id.PeerPort < other.PeerPort
}

// SubscriberEndpoint is the host:port to which subscribers are redirected.
func (id BrokerID) SubscriberEndpoint() string {
	return net.JoinHostPort(id.IP, strconv.Itoa(id.SubscriberPort))
}

// PeerEndpoint is the host:port at which peer brokers reach this broker.
func (id BrokerID) PeerEndpoint() string {
	return net.JoinHostPort(id.IP, strconv.Itoa(id.PeerPort))
}

func (id BrokerID) String() string {
	return fmt.Sprintf("%s(sub=%d,peer=%d)", id.IP, id.SubscriberPort, id.PeerPort)
}
