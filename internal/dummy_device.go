package internal

import (
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/currantlabs/ble"
)

// DummyAdv is an advertisement as seen while scanning
type DummyAdv struct {
	Addr       string
	Name       string
	Rssi       int
	NonService bool
}

func (a DummyAdv) LocalName() string              { return a.Name }
func (a DummyAdv) ManufacturerData() []byte       { return nil }
func (a DummyAdv) ServiceData() []ble.ServiceData { return nil }
func (a DummyAdv) Services() []ble.UUID {
	if a.NonService {
		return nil
	}
	return []ble.UUID{ble.MustParse(util.DataServiceUUID)}
}
func (a DummyAdv) OverflowService() []ble.UUID  { return nil }
func (a DummyAdv) TxPowerLevel() int            { return 0 }
func (a DummyAdv) Connectable() bool            { return true }
func (a DummyAdv) SolicitedService() []ble.UUID { return nil }
func (a DummyAdv) RSSI() int                    { return a.Rssi }
func (a DummyAdv) Address() ble.Addr            { return ble.NewAddr(a.Addr) }
