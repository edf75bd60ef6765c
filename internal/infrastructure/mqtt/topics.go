package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefixShadow is the reserved prefix for device shadow topics.
	TopicPrefixShadow = "$aws/things"

	// TopicPrefixDevice is the base for the agent's own topics.
	TopicPrefixDevice = "crib"
)

// Topics provides builders for one thing's MQTT topics.
//
//	topics := mqtt.Topics{Thing: "crib-3f2a"}
//	topics.ShadowDelta() // "$aws/things/crib-3f2a/shadow/update/delta"
type Topics struct {
	Thing string
}

func (t Topics) shadow(suffix string) string {
	return fmt.Sprintf("%s/%s/shadow/%s", TopicPrefixShadow, t.Thing, suffix)
}

// ShadowUpdate is where reported/desired updates are published.
func (t Topics) ShadowUpdate() string { return t.shadow("update") }

// ShadowDelta carries the desired-vs-reported differences to the device.
func (t Topics) ShadowDelta() string { return t.shadow("update/delta") }

// ShadowUpdateAccepted acknowledges an accepted update.
func (t Topics) ShadowUpdateAccepted() string { return t.shadow("update/accepted") }

// ShadowUpdateRejected reports a rejected update.
func (t Topics) ShadowUpdateRejected() string { return t.shadow("update/rejected") }

// ShadowGet requests the full shadow document.
func (t Topics) ShadowGet() string { return t.shadow("get") }

// ShadowGetAccepted carries the full shadow document.
func (t Topics) ShadowGetAccepted() string { return t.shadow("get/accepted") }

// ShadowGetRejected reports a failed get request.
func (t Topics) ShadowGetRejected() string { return t.shadow("get/rejected") }

// Status is the retained online/offline topic for this device.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, t.Thing)
}
