// Package mqtt publishes gateway state to an MQTT broker using
// github.com/eclipse/paho.mqtt.golang.
//
// Topic layout, under a configurable prefix (default "drone"):
//
//	drone/system/status        online/offline, retained, also the last will
//	drone/state/{kind}/{id}    device state after each write, retained
//	drone/sample/{kind}/{id}   read samples, not retained
//
// The connection reconnects automatically with exponential backoff. While
// disconnected, Publish fails fast with ErrNotConnected; callers treat MQTT
// as best-effort telemetry.
package mqtt
