// Package shadow keeps the cloud device shadow and the hardware in step.
//
// The Reconciler subscribes to the thing's delta topic. Each delta is
// queued by the MQTT handler and applied by a single worker, so deltas are
// processed in delivery order while the transport never waits on hardware.
// Attributes inside one delta are dispatched concurrently and independently:
//
//	Received -> Dispatching -> Reported   (driver succeeded)
//	                        -> Rejected   (unknown attribute or driver failure)
//
// Every dispatch that reaches a verdict on the attribute publishes exactly
// one Shadow Update:
//
//   - applied:  {"state":{"reported":{name:v},"desired":{name:v}}}
//   - unknown:  {"state":{"reported":{name:null},"desired":{name:null}}}
//
// Clearing desired for unknown attributes stops the cloud from redelivering
// them. A driver failure publishes nothing and leaves desired pending; it is
// retried the next time the delta arrives (for example after a reconnect).
//
// Publishes are asynchronous. Their acknowledgements are logged by a
// dedicated observer goroutine; a failed publish is not retried.
package shadow
