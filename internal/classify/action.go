// Package classify maps filesystem change kinds to the action a virtual
// machine manager has to take.
package classify

import (
	"encoding/json"
	"fmt"
)

// ActionType is the closed set of VMM actions.
type ActionType string

const (
	Copy     ActionType = "copy"
	Migrate  ActionType = "migrate"
	Snapshot ActionType = "snapshot"
	Rollup   ActionType = "rollup"
	Other    ActionType = "other"
)

// Action is a classified VMM action. Reason is only set for Other.
type Action struct {
	Type   ActionType `json:"type"`
	Reason string     `json:"reason,omitempty"`
}

func (a Action) String() string {
	if a.Type == Other {
		return fmt.Sprintf("other(%s)", a.Reason)
	}
	return string(a.Type)
}

// UnmarshalJSON implements json.Unmarshaler and rejects unknown action types.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Type {
	case Copy, Migrate, Snapshot, Rollup, Other:
	default:
		return fmt.Errorf("classify: unknown action type %q", p.Type)
	}
	*a = Action(p)
	return nil
}

func action(t ActionType) Action {
	return Action{Type: t}
}

func other(reason string) Action {
	return Action{Type: Other, Reason: reason}
}
