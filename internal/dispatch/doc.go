// Package dispatch resolves a desired attribute value to its driver,
// invokes the driver and records the applied value in the state store.
//
// The Dispatcher is the only component that executes drivers on behalf of
// the cloud; local tools (sensorctl, the button watcher) go through it as
// well, so every applied value lands in the store the same way.
//
// Outcomes:
//   - success: the applied value is returned and persisted
//   - ErrUnknownAttribute: no driver is registered; nothing runs
//   - *DriverError (errors.Is ErrDriverFailure): the driver returned an
//     error or panicked; the store is untouched
//
// A store write failure after a successful driver call is logged and
// otherwise ignored. The hardware has already changed, so the applied
// value is still returned.
package dispatch
