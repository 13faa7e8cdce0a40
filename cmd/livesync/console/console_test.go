package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorwatch/livesync/pkg/event"
	"github.com/sensorwatch/livesync/pkg/subscription"
)

func TestParseRoom(t *testing.T) {
	tests := []struct {
		in   string
		want subscription.Room
	}{
		{"alerts", subscription.Room{Domain: event.DomainAlerts}},
		{"Devices:d-1", subscription.Room{Domain: event.DomainDevices, EntityID: "d-1"}},
		{"analytics", subscription.Room{Domain: event.DomainAnalytics}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRoom(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRoomUnknownDomain(t *testing.T) {
	_, err := ParseRoom("sites:s-1")
	assert.Error(t, err)
}
