package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("AlertCreated", func(t *testing.T) {
		env, err := Decode([]byte(`{
			"type": "alert.created",
			"timestamp": "2026-03-01T10:00:00Z",
			"data": {"alertId": "a-1", "deviceId": "d-7", "severity": "critical", "status": "active", "message": "temp high"}
		}`))
		require.NoError(t, err)

		assert.Equal(t, TypeAlertCreated, env.Type)
		assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), env.Timestamp)
		p, ok := env.Data.(AlertCreated)
		require.True(t, ok, "data is %T", env.Data)
		assert.Equal(t, "a-1", p.ID)
		assert.Equal(t, SeverityCritical, p.Severity)
	})

	t.Run("HeartbeatWithoutData", func(t *testing.T) {
		env, err := Decode([]byte(`{"type":"heartbeat"}`))
		require.NoError(t, err)
		assert.Equal(t, Heartbeat{}, env.Data)
		assert.True(t, env.Timestamp.IsZero())
	})

	t.Run("OverrideType", func(t *testing.T) {
		env, err := DecodeAs(TypeAlertRemoved, []byte(`{"data":{"alertId":"a-9"}}`))
		require.NoError(t, err)
		assert.Equal(t, AlertRemoved{AlertID: "a-9"}, env.Data)
	})

	t.Run("ServerError", func(t *testing.T) {
		env, err := Decode([]byte(`{"type":"error","data":{"message":"rate limited","code":"429"}}`))
		require.NoError(t, err)
		assert.EqualError(t, env.Data.(ServerError), "server error 429: rate limited")
	})
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		reason string
	}{
		{"Empty", "  ", "decode envelope"},
		{"NotJSON", "{oops", "decode envelope"},
		{"MissingType", `{"data":{}}`, "missing type"},
		{"UnknownType", `{"type":"weather.changed","data":{}}`, "route"},
		{"WrongDataShape", `{"type":"alert.created","data":[1,2]}`, "decode data"},
		{"MissingAlertID", `{"type":"alert.created","data":{"message":"x"}}`, "invalid data"},
		{"MissingDeviceID", `{"type":"device.telemetry","data":{"values":{"t":1}}}`, "invalid data"},
		{"BadTimestamp", `{"type":"heartbeat","timestamp":"yesterday"}`, "invalid timestamp"},
		{"ErrorWithoutMessage", `{"type":"error","data":{"code":"1"}}`, "invalid data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			var perr *ProtocolError
			require.True(t, errors.As(err, &perr), "err = %v", err)
			assert.Equal(t, tt.reason, perr.Reason)
		})
	}

	_, err := Decode([]byte(`{"type":"weather.changed"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	battery := 0.42
	in := New(DeviceTelemetry{
		DeviceID:  "d-1",
		Status:    DeviceOnline,
		Battery:   &battery,
		Timestamp: ts,
		Values:    map[string]float64{"temperature": 21.5},
	}, ts)

	frame, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Encode(Envelope{Type: TypeAlertCreated, Data: Heartbeat{}})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestControl(t *testing.T) {
	frame, err := EncodeControl(Control{Action: ActionSubscribe, Domain: DomainAlerts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe:alerts"}`, string(frame))

	frame, err = EncodeControl(Control{Action: ActionUnsubscribe, Domain: DomainDevices, IDs: []string{"d-1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unsubscribe:devices","data":{"ids":["d-1"]}}`, string(frame))

	c, err := DecodeControl(frame)
	require.NoError(t, err)
	assert.Equal(t, Control{Action: ActionUnsubscribe, Domain: DomainDevices, IDs: []string{"d-1"}}, c)

	_, err = DecodeControl([]byte(`{"type":"join:alerts"}`))
	assert.Error(t, err)
}

func TestTypeDomain(t *testing.T) {
	assert.Equal(t, DomainAlerts, TypeAlertResolved.Domain())
	assert.Equal(t, DomainDevices, TypeDeviceTelemetry.Domain())
	assert.Equal(t, DomainAnalytics, TypeAnalyticsSummary.Domain())
	assert.Equal(t, Domain(""), TypeHeartbeat.Domain())
	assert.Len(t, Types(), 9)
}

func TestEntityID(t *testing.T) {
	tests := []struct {
		payload Payload
		want    string
	}{
		{AlertCreated{Alert: Alert{ID: "a-1"}}, "a-1"},
		{AlertResolved{AlertID: "a-2"}, "a-2"},
		{AlertRemoved{AlertID: "a-3"}, "a-3"},
		{DeviceRegistered{Device: Device{ID: "d-1"}}, "d-1"},
		{DeviceTelemetry{DeviceID: "d-2"}, "d-2"},
		{DeviceRemoved{DeviceID: "d-3"}, "d-3"},
		{AnalyticsSummary{}, ""},
		{Heartbeat{}, ""},
	}
	for _, tc := range tests {
		t.Run(string(tc.payload.EventType()), func(t *testing.T) {
			assert.Equal(t, tc.want, EntityID(tc.payload))
		})
	}
}
