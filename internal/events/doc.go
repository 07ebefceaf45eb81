// Package events publishes state-handler events to an MQTT broker.
//
// Each event goes to <prefix>/<event> with the colon in the event name
// replaced by a slash, so "document:saved" lands on "spe/document/saved".
// Payloads are JSON envelopes carrying a unique id, the event name, the
// emission time and the event data.
package events
