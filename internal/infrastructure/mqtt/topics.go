package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every gateway topic.
const DefaultTopicPrefix = "drone"

// Topics builds gateway topic names under a prefix.
//
//	topics := mqtt.NewTopics("drone")
//	topics.DeviceState("motor", 1) // "drone/state/motor/1"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. An empty prefix selects
// DefaultTopicPrefix; surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string { return t.prefix }

// DeviceState is the retained state topic of one device.
//
// Example: drone/state/light/2
func (t Topics) DeviceState(kind string, id int) string {
	return fmt.Sprintf("%s/state/%s/%d", t.prefix, kind, id)
}

// DeviceSample is the non-retained topic for read samples, such as
// altimeter readings.
//
// Example: drone/sample/altimeter/1
func (t Topics) DeviceSample(kind string, id int) string {
	return fmt.Sprintf("%s/sample/%s/%d", t.prefix, kind, id)
}

// SystemStatus is the gateway's online/offline topic, also used for the
// last will.
//
// Example: drone/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// AllDeviceStates matches every device state topic.
//
// Example: drone/state/+/+
func (t Topics) AllDeviceStates() string {
	return t.prefix + "/state/+/+"
}
