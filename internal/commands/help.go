package commands

import "fmt"

const helpTemplate = `HA-TCP Bridge v%s
Line ending: CRLF (\r\n)

Commands:
PRESS <entity_id>         - Press a button
ON <entity_id>            - Turn on light/switch
OFF <entity_id>           - Turn off light/switch
LEVEL <entity_id> <0-100> - Set brightness
LIST                      - List entities
LISTBUTTONS               - List button entities only
PING                      - Test connection

Example: PRESS button.kitchen_keypad_bright
Example: ON light.living_room
Example: LEVEL light.living_room 50`

// HelpText returns the HELP reply for the given protocol version.
func HelpText(version string) string {
	return fmt.Sprintf(helpTemplate, version)
}
