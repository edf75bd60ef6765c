// Package agent assembles the crib device agent.
//
// OpenRuntime opens the durable pieces (state database, optional InfluxDB
// history, board peripherals) and builds the driver registry and
// dispatcher over them. Agent then runs the startup sequence and hands the
// long-lived tasks to a supervisor:
//
//   - shadow:  MQTT session plus the shadow reconciler
//   - buttons: long-press toggles from the board's push buttons
//   - sensors: periodic temperature and CPU reports
//
// Local changes made by buttons and sensors go through the same
// dispatcher as cloud deltas and are reported to the shadow whenever a
// session is live.
package agent
