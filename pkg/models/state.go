package models

import "github.com/pkg/errors"

// ConnectionState is an enum for all states of the connection state machine
type ConnectionState int

const (
	// Idle indicates no peripheral is tracked and nothing is scanning
	Idle ConnectionState = iota
	// Scanning indicates discovery is running and peripherals are collected
	Scanning
	// Connecting indicates a connection to the chosen peripheral was requested
	Connecting
	// ServiceDiscovery indicates the data service is being looked up
	ServiceDiscovery
	// CharacteristicDiscovery indicates characteristics of the found services are being enumerated
	CharacteristicDiscovery
	// Subscribed indicates resistance notifications are flowing into the pipeline
	Subscribed
	// Disconnecting indicates teardown was requested and the link is being cancelled
	Disconnecting
)

var connectionStateNames = []string{
	"Idle", "Scanning", "Connecting", "ServiceDiscovery",
	"CharacteristicDiscovery", "Subscribed", "Disconnecting",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(connectionStateNames) {
		return "Unknown"
	}
	return connectionStateNames[s]
}

// MarshalText renders the state by name for JSON and MQTT payloads
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ConnectionState) UnmarshalText(b []byte) error {
	for i, name := range connectionStateNames {
		if name == string(b) {
			*s = ConnectionState(i)
			return nil
		}
	}
	return errors.Errorf("unknown connection state %q", b)
}

// Linked reports whether the state holds (or is acquiring) a peripheral connection
func (s ConnectionState) Linked() bool {
	switch s {
	case Connecting, ServiceDiscovery, CharacteristicDiscovery, Subscribed:
		return true
	}
	return false
}
