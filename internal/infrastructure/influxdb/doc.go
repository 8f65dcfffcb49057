// Package influxdb exports device telemetry to InfluxDB v2.
//
// Every accepted device operation becomes one point in the
// "device_operations" measurement:
//
//	device_operations,device_kind=motor,device_id=1,operation=write value=500i,duration_ms=742.1
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the callback
// set with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceOperation(influxdb.Operation{Kind: "motor", DeviceID: 1, Op: "write", Value: 500})
//
// All methods are safe for concurrent use.
package influxdb
