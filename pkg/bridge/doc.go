// Package bridge merges push events into cached query results.
//
// Each domain bridge registers typed handlers on a subscription.Registry
// and applies pure merge functions through cache.Store.Update, so
// applying the same event twice leaves the cache as applying it once.
// Refetched server results always overwrite merged state.
//
// Cache layout:
//
//	alerts/list?{filter}      []event.Alert, newest first
//	alerts/detail?{"id":..}   event.Alert
//	devices/list?{filter}     []event.Device, newest first
//	devices/detail?{"id":..}  event.Device
//	devices/telemetry?{"id"}  []event.Reading, newest first, bounded
//	analytics/summary?{..}    event.Summary
//
// Resync refetches every cached key of the bridged domains after a
// reconnect, and Refresher periodically refetches analytics while
// connected.
package bridge
