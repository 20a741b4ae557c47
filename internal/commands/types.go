// Package commands parses bridge command lines and dispatches them to the
// Home Assistant API.
package commands

import "strings"

// Action identifies one of the bridge's command variants.
type Action int

const (
	ActionUnknown Action = iota
	ActionHelp
	ActionPing
	ActionList
	ActionListButtons
	ActionPress
	ActionOn
	ActionOff
	ActionLevel
)

var actionNames = map[Action]string{
	ActionHelp:        "HELP",
	ActionPing:        "PING",
	ActionList:        "LIST",
	ActionListButtons: "LISTBUTTONS",
	ActionPress:       "PRESS",
	ActionOn:          "ON",
	ActionOff:         "OFF",
	ActionLevel:       "LEVEL",
}

var actionsByName = func() map[string]Action {
	out := make(map[string]Action, len(actionNames))
	for action, name := range actionNames {
		out[name] = action
	}
	return out
}()

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// LookupAction maps a keyword to its Action, case-insensitively.
func LookupAction(token string) Action {
	if action, ok := actionsByName[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return action
	}
	return ActionUnknown
}

// Command is one parsed input line.
type Command struct {
	// Action is the matched variant, ActionUnknown when the keyword is not
	// recognized.
	Action Action

	// Keyword is the upper-cased action token as typed.
	Keyword string

	// Args are the positional tokens after the keyword.
	Args []string
}

// Arg returns the i-th argument, or "" when absent.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
