// Package state is the device's persistent record of the last value applied
// to each attribute.
//
// A Store maps attribute names to their last applied value and the wall
// clock time it was written. Writes to the same attribute are last-writer
// wins; writes to different attributes are independent. Two backends are
// provided: SQLiteStore for the device and MemoryStore for simulation and
// tests. WithRecorder mirrors every successful write to a history sink.
package state
