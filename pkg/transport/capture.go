package transport

import (
	"time"

	"github.com/sensorwatch/livesync/pkg/log"
)

// capture records transport-layer protocol events for one connection.
type capture struct {
	logger    log.Logger
	transport string
	connID    string
	maxFrame  int
}

func (c capture) frame(dir log.Direction, data []byte) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Transport:    c.transport,
		Frame:        log.NewFrameEvent(data, c.maxFrame),
	})
}

func (c capture) control(dir log.Direction, typ log.ControlType) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		Transport:    c.transport,
		Control:      &log.ControlEvent{Type: typ},
	})
}

func (c capture) error(err error, context string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionNone,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Transport:    c.transport,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Kind:    log.ErrorTransport,
			Message: err.Error(),
			Context: context,
		},
	})
}
