package client

import "github.com/TheSlimvReal/posture-client/pkg/models"

// Transport is the radio side of the connection state machine.
// Requests must not block; results arrive later as events on the client's Dispatch.
// A returned error means the request could not even be issued.
type Transport interface {
	// StartScan starts discovery filtered on service; every match is reported as EventPeripheralFound
	StartScan(service string) error
	StopScan() error
	// Connect reports EventConnected or EventFailure. Every event of the
	// resulting connection carries link in Event.Link.
	Connect(p models.PeripheralHandle, link uint64) error
	// DiscoverServices reports EventServicesFound with the ids of the matching services
	DiscoverServices(p models.PeripheralHandle, services []string) error
	// DiscoverCharacteristics reports EventCharacteristicFound per match followed by EventCharacteristicsDone
	DiscoverCharacteristics(p models.PeripheralHandle, services []string, chars []string) error
	// Subscribe reports EventSubscribed and then EventValueUpdate per notification
	Subscribe(p models.PeripheralHandle, char string) error
	// Read reports a single EventValueUpdate
	Read(p models.PeripheralHandle, char string) error
	// Cancel tears link down; EventDisconnected follows. A newer link to p is left alone.
	Cancel(p models.PeripheralHandle, link uint64) error
}
