// Package api implements the gateway's HTTP API and WebSocket server.
//
// Device routes translate into dispatch.Requests and are answered by the
// dispatcher; the HTTP goroutine only parses the path, reads the body and
// writes whatever dispatch.Response comes back:
//
//	GET   /motors/{id}        PATCH /motors/{id}      {"motor_speed": int}
//	GET   /lights/{id}        PATCH /lights/{id}      {"brightness_level": int}
//	GET   /altimeters/{id}
//
// /hexacopters and /leds are accepted as aliases of /motors and /lights.
//
// Supporting routes never touch device hardware:
//
//	GET /devices                         fleet catalogue
//	GET /motors/{id}/history             SQLite operation history
//	GET /lights/{id}/history
//	GET /health                          dispatcher and worker pool stats
//	GET /metrics                         Prometheus exposition
//	GET /ws                              WebSocket event stream
//
// # Event Stream
//
// A /ws client sends {"type":"subscribe","id":"1","channels":["device.state_changed"]}
// and gets an ack back. Events arrive as {"type":"event","channel":...,"data":...}.
// A ping is answered with a pong. Events for a subscriber that stops reading
// are dropped rather than queued without bound.
//
// # Graceful Degradation
//
// History, MQTT and InfluxDB are optional. Without a history repository the
// history routes answer 503; everything else keeps working.
package api
