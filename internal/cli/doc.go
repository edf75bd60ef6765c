// Package cli implements the sensorctl command tree.
//
// sensorctl drives the board through the same driver registry, dispatcher
// and state store the agent uses, without a cloud session:
//
//	sensorctl drive lights set 30
//	sensorctl get lights
//	sensorctl list
package cli
