package client

import "github.com/TheSlimvReal/posture-client/pkg/models"

// Status is a point in time view of the connection for rendering
type Status struct {
	State       models.ConnectionState    `json:"state"`
	Peripheral  *models.PeripheralHandle  `json:"peripheral,omitempty"`
	Peripherals []models.PeripheralHandle `json:"peripherals"`
}

// Status returns the current state, the tracked peripheral and the discovered list
func (c *Client) Status() Status {
	s := Status{State: c.State(), Peripherals: c.Peripherals()}
	if p, ok := c.Peripheral(); ok {
		s.Peripheral = &p
	}
	return s
}
