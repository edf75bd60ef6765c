// Package influxdb records attribute history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every successful
// State Store write can be mirrored here (see state.WithRecorder) as a point
// in the device_attributes measurement, tagged with the thing and attribute
// names.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, thingName)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	store = state.WithRecorder(store, client)
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
