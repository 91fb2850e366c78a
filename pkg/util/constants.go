package util

import "time"

const (
	// DataServiceUUID represents UUID for the ble service advertised by the posture sensor
	DataServiceUUID = "180A"
	// ResistanceCharUUID represents UUID for the ble characteristic which notifies resistance readings
	ResistanceCharUUID = "2A58"
	// DefaultBaselineValue is the relaxed resistance assumed for every axis until calibration
	DefaultBaselineValue = 1500
	// DefaultWindow is the number of most recent samples averaged by classifier and calibration
	DefaultWindow = 5
	// DefaultLeftRightThreshold is the deviation of a side axis that counts as leaning
	DefaultLeftRightThreshold = 150
	// DefaultForwardThreshold is the deviation of the middle axis that counts as leaning forward
	DefaultForwardThreshold = 50
	// DefaultHistoryCapacity bounds the readings kept for a session
	DefaultHistoryCapacity = 512
	// DefaultStepTimeout bounds each connection step (connect, discovery, teardown)
	DefaultStepTimeout = 10 * time.Second
	// DefaultRetryInterval is the pause before a running client scans again after a connection error
	DefaultRetryInterval = 2 * time.Second
	// DefaultDialTimeout is used by the HCI device for outgoing connections
	DefaultDialTimeout = 10 * time.Second
)
