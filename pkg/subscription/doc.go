// Package subscription routes decoded push events to local handlers and
// tracks server-side room interest.
//
// # Registry
//
// Handlers register per event type and receive an unsubscribe function
// tied to that one registration. Dispatch runs every handler for the
// envelope's type; a panicking handler is recovered and logged and the
// remaining handlers still run.
//
// # Rooms
//
// Some servers only push events for rooms a client joined. Rooms counts
// local interest per room and sends one subscribe control message for
// the first interest and one unsubscribe for the last. Subscriptions do
// NOT survive connection loss: after a reconnect every room with interest
// is subscribed again.
package subscription
