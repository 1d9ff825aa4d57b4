package classify

import (
	"github.com/obby/libretto/internal/fsevent"
	"github.com/obby/libretto/internal/patterns"
)

// LibrettoEvent is a classified change, the unit carried on the classified
// event topic.
type LibrettoEvent struct {
	Event  fsevent.Event `json:"event"`
	Action Action        `json:"action"`
	// InstanceName is empty when the first affected path does not belong to
	// an instance.
	InstanceName string `json:"instance_name,omitempty"`
}

// NewLibrettoEvent classifies ev and resolves its instance from the first
// affected path. It reports false when the change needs no action.
func NewLibrettoEvent(ev fsevent.Event, layout patterns.Layout) (LibrettoEvent, bool) {
	act, ok := Classify(ev.Kind)
	if !ok {
		return LibrettoEvent{}, false
	}
	return LibrettoEvent{
		Event:        ev,
		Action:       act,
		InstanceName: layout.InstanceName(ev.FirstPath()),
	}, true
}
