package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// AttributeMeasurement is the measurement attribute history is written to.
const AttributeMeasurement = "device_attributes"

// NewAttributePoint builds the history point for one attribute write.
//
// Numbers and booleans are stored in the float field "value"; anything
// else is JSON-encoded into the string field "text".
func NewAttributePoint(thing, name string, value any, at time.Time) *write.Point {
	fields := make(map[string]interface{}, 1)
	switch v := value.(type) {
	case float64:
		fields["value"] = v
	case float32:
		fields["value"] = float64(v)
	case int:
		fields["value"] = float64(v)
	case int64:
		fields["value"] = float64(v)
	case bool:
		if v {
			fields["value"] = 1.0
		} else {
			fields["value"] = 0.0
		}
	case string:
		fields["text"] = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			encoded = []byte(`null`)
		}
		fields["text"] = string(encoded)
	}

	return write.NewPoint(
		AttributeMeasurement,
		map[string]string{
			"thing":     thing,
			"attribute": name,
		},
		fields,
		at,
	)
}

// RecordAttribute writes one attribute change. The write is non-blocking;
// points are batched and sent asynchronously.
func (c *Client) RecordAttribute(name string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewAttributePoint(c.thing, name, value, at))
}
