package models

import (
	"fmt"
	"net"
	"strconv"
)

// TransportType is the transport a game server exposes its port over.
type TransportType string

const (
	TransportTCP TransportType = "tcp"
	TransportUDP TransportType = "udp"
	TransportTLS TransportType = "tls"
	TransportWS  TransportType = "ws"
)

// ParseTransportType maps a raw transport string to a recognised
// TransportType. Anything unrecognised becomes TransportTCP.
func ParseTransportType(raw string) TransportType {
	switch t := TransportType(raw); t {
	case TransportTCP, TransportUDP, TransportTLS, TransportWS:
		return t
	default:
		return TransportTCP
	}
}

// ConnectionDetails is where a room's game server can be reached. It never
// changes once the room exposes its port.
type ConnectionDetails struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	TransportType TransportType `json:"transportType"`
}

// Addr returns host:port.
func (d ConnectionDetails) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d ConnectionDetails) String() string {
	return fmt.Sprintf("%s/%s", d.Addr(), d.TransportType)
}

// LocalConnectionDetails points at a game server run by a developer on their
// own machine. Rooms with VisibilityLocal always resolve to it.
var LocalConnectionDetails = ConnectionDetails{
	Host:          "localhost",
	Port:          4000,
	TransportType: TransportTCP,
}

// ExposedPort is the raw endpoint reported by the orchestration service.
type ExposedPort struct {
	Name          string `json:"name,omitempty"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	TransportType string `json:"transportType"`
}

// ConnectionInfo is the response of the connection-info lookup. ExposedPort
// stays nil until the room's process is reachable.
type ConnectionInfo struct {
	RoomID      string       `json:"roomId"`
	Status      string       `json:"status"`
	ExposedPort *ExposedPort `json:"exposedPort,omitempty"`
}

// Details normalises the exposed port into ConnectionDetails.
func (p ExposedPort) Details() ConnectionDetails {
	return ConnectionDetails{
		Host:          p.Host,
		Port:          p.Port,
		TransportType: ParseTransportType(p.TransportType),
	}
}
