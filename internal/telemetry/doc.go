// Package telemetry fans device events out to the gateway's optional sinks.
//
// Each sink is a device.Observer registered on the Registry:
//
//	HistoryObserver  -> SQLite device_operations (writes only)
//	MQTTPublisher    -> drone/state/{kind}/{id} (retained) and drone/sample/{kind}/{id}
//	InfluxRecorder   -> InfluxDB device_operations measurement
//	HubObserver      -> WebSocket channels device.state_changed and device.sample
//
// Observers run on the worker goroutine that completed the operation, after
// the device lock has been released. They never fail the operation: sink
// errors are logged and dropped.
//
// The history, MQTT and InfluxDB sinks block on I/O, so the gateway wraps
// each in a QueuedObserver. Its bounded buffer is drained by one goroutine
// per sink, preserving event order; overflow is dropped and counted. Close
// drains what is buffered and must run before the sink's backend closes.
package telemetry
