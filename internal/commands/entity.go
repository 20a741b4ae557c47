package commands

import "strings"

const (
	domainLight  = "light."
	domainButton = "button."
	domainSwitch = "switch."
)

// ButtonEntity lower-cases id and ensures the button domain.
func ButtonEntity(id string) string {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, domainButton) {
		id = domainButton + id
	}
	return id
}

// LightEntity lower-cases id and ensures the light domain. Any id that does
// not already start with "light." is prefixed, even one with another domain.
func LightEntity(id string) string {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, domainLight) {
		id = domainLight + id
	}
	return id
}

// PowerTarget resolves the entity id and the "<domain>/<service>" to call
// for an ON/OFF command. Bare ids are always treated as lights.
func PowerTarget(id, service string) (entityID, domainService string) {
	id = strings.ToLower(id)
	switch {
	case strings.HasPrefix(id, domainLight) || !strings.Contains(id, "."):
		return LightEntity(id), "light/" + service
	case strings.HasPrefix(id, domainSwitch):
		return id, "switch/" + service
	default:
		return id, "homeassistant/" + service
	}
}

// Brightness converts a 0-100 percentage into Home Assistant's 0-255 scale,
// truncating.
func Brightness(level int) int {
	return level * 255 / 100
}
