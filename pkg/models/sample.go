package models

import (
	"fmt"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/util"
)

// SensorSample is one decoded resistance reading of the three sensor strips
type SensorSample struct {
	Left   int `json:"left"`
	Middle int `json:"middle"`
	Right  int `json:"right"`
}

// Baseline is the relaxed posture reference that samples are compared against
type Baseline struct {
	Left   int `json:"left"`
	Middle int `json:"middle"`
	Right  int `json:"right"`
}

// DefaultBaseline returns the baseline in effect before any calibration
func DefaultBaseline() Baseline {
	return Baseline{util.DefaultBaselineValue, util.DefaultBaselineValue, util.DefaultBaselineValue}
}

// PostureVerdict flags the directions the wearer is currently leaning to
type PostureVerdict struct {
	Left     bool `json:"left"`
	Right    bool `json:"right"`
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
}

// Upright reports whether no direction is flagged
func (v PostureVerdict) Upright() bool {
	return !v.Left && !v.Right && !v.Forward && !v.Backward
}

func (v PostureVerdict) String() string {
	if v.Upright() {
		return "upright"
	}
	s := ""
	for _, d := range []struct {
		on   bool
		name string
	}{{v.Left, "left"}, {v.Right, "right"}, {v.Forward, "forward"}, {v.Backward, "backward"}} {
		if !d.on {
			continue
		}
		if s != "" {
			s += "+"
		}
		s += d.name
	}
	return s
}

// Reading pairs an ingested sample with the verdict computed right after it
type Reading struct {
	Seq        uint64         `json:"seq"`
	Sample     SensorSample   `json:"sample"`
	Verdict    PostureVerdict `json:"verdict"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// PeripheralHandle identifies a discovered sensor; ID is the device address
type PeripheralHandle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	RSSI int    `json:"rssi"`
}

// Same reports whether both handles point at the same device
func (p PeripheralHandle) Same(o PeripheralHandle) bool {
	return util.AddrEqualAddr(p.ID, o.ID)
}

func (p PeripheralHandle) String() string {
	name := p.Name
	if name == "" {
		name = "unnamed"
	}
	return fmt.Sprintf("%s - %s", name, p.ID)
}
