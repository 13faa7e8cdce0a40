package service

import (
	"errors"
	"time"

	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/log"
	"github.com/sensorwatch/livesync/pkg/transport"
)

// sseDefaultEvent is the event name implied by a stream without an
// explicit "event:" field.
const sseDefaultEvent = "message"

// handleMessage decodes one frame, merges it into the cache and hands it
// to consumers.
func (s *Service) handleMessage(msg transport.Message) {
	override := event.Type(msg.Event)
	if override == sseDefaultEvent {
		override = ""
	}

	env, err := event.DecodeAs(override, msg.Data)
	if err != nil {
		s.dropFrame(err)
		return
	}

	switch p := env.Data.(type) {
	case event.ServerError:
		s.logger.Warn("server error", "message", p.Message, "code", p.Code)
		s.plog.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionIn,
			Layer:     log.LayerEnvelope,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerEnvelope,
				Kind:    log.ErrorServer,
				Message: p.Message,
				Code:    p.Code,
			},
		})
	case event.Heartbeat:
		s.logger.Debug("heartbeat", "server_time", p.ServerTime)
	}

	s.merges.Dispatch(env)
	s.events.Dispatch(env)
}

func (s *Service) dropFrame(err error) {
	var pe *event.ProtocolError
	kind := "malformed"
	if errors.As(err, &pe) && errors.Is(pe.Err, event.ErrUnknownType) {
		kind = "unknown type"
	}
	s.logger.Warn("dropping frame", "reason", kind, "error", err)
	s.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerEnvelope,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEnvelope,
			Kind:    log.ErrorProtocol,
			Message: err.Error(),
			Context: "decode",
		},
	})
}
