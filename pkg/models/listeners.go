package models

// ConnectionListener observes the connection state machine
type ConnectionListener interface {
	OnStateChanged(from ConnectionState, to ConnectionState)
	OnPeripheralFound(PeripheralHandle)
	OnConnectionError(error)
}

// SessionListener observes the decode and classification pipeline
type SessionListener interface {
	OnReading(Reading)
	OnDecodeError(error)
	OnCalibrated(Baseline)
}

// ConnectionListeners fans every callback out to each listener in order
type ConnectionListeners []ConnectionListener

func (ls ConnectionListeners) OnStateChanged(from ConnectionState, to ConnectionState) {
	for _, l := range ls {
		l.OnStateChanged(from, to)
	}
}

func (ls ConnectionListeners) OnPeripheralFound(p PeripheralHandle) {
	for _, l := range ls {
		l.OnPeripheralFound(p)
	}
}

func (ls ConnectionListeners) OnConnectionError(err error) {
	for _, l := range ls {
		l.OnConnectionError(err)
	}
}

// SessionListeners fans every callback out to each listener in order
type SessionListeners []SessionListener

func (ls SessionListeners) OnReading(r Reading) {
	for _, l := range ls {
		l.OnReading(r)
	}
}

func (ls SessionListeners) OnDecodeError(err error) {
	for _, l := range ls {
		l.OnDecodeError(err)
	}
}

func (ls SessionListeners) OnCalibrated(b Baseline) {
	for _, l := range ls {
		l.OnCalibrated(b)
	}
}

// NopListener ignores every callback; embed it to implement only what you need
type NopListener struct{}

func (NopListener) OnStateChanged(ConnectionState, ConnectionState) {}
func (NopListener) OnPeripheralFound(PeripheralHandle)              {}
func (NopListener) OnConnectionError(error)                         {}
func (NopListener) OnReading(Reading)                               {}
func (NopListener) OnDecodeError(error)                             {}
func (NopListener) OnCalibrated(Baseline)                           {}
