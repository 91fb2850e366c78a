package server

// Status is an enum for the lifecycle of the emulated sensor
type Status int

const (
	// Stopped indicates the server is not advertising
	Stopped Status = iota
	// Advertising indicates the data service is registered and advertised
	Advertising
	// Crashed indicates registering or advertising returned an error
	Crashed
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Advertising:
		return "Advertising"
	case Crashed:
		return "Crashed"
	}
	return "Unknown"
}

// StatusListener observes the emulated sensor
type StatusListener interface {
	OnServerStatusChanged(Status, error)
	OnSubscribersChanged(count int)
}

type nopStatusListener struct{}

func (nopStatusListener) OnServerStatusChanged(Status, error) {}
func (nopStatusListener) OnSubscribersChanged(int)            {}
