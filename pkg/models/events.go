package models

// EventKind enumerates everything that can drive the connection state machine,
// both caller requests and transport notifications
type EventKind int

const (
	EventStartScan EventKind = iota
	EventStopScan
	EventPeripheralFound
	EventConnect
	EventConnected
	EventServicesFound
	EventCharacteristicFound
	EventCharacteristicsDone
	EventSubscribed
	EventValueUpdate
	EventDisconnectRequest
	EventDisconnected
	EventFailure
	EventTimeout
)

var eventKindNames = []string{
	"StartScan", "StopScan", "PeripheralFound", "Connect", "Connected", "ServicesFound",
	"CharacteristicFound", "CharacteristicsDone", "Subscribed", "ValueUpdate",
	"DisconnectRequest", "Disconnected", "Failure", "Timeout",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "Unknown"
	}
	return eventKindNames[k]
}

// Event is a single input to the connection state machine.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind           EventKind
	Peripheral     PeripheralHandle
	Services       []string
	Characteristic string
	Data           []byte
	Err            error
	// Step tags timeout events with the connection step they were armed for
	Step uint64
	// Link tags transport events with the connection attempt that produced them; 0 is untagged
	Link uint64
}

// EventSink receives events from a transport
type EventSink interface {
	Dispatch(Event)
}

// FrameSink is the pipeline a sample source feeds raw sensor frames into
type FrameSink interface {
	// Ingest decodes and classifies one frame
	Ingest(frame []byte) error
	// Clear drops the history and keeps the baseline
	Clear()
	// Reset drops the history and restores the default baseline
	Reset()
}
