package homeassistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ControllableDomains are the entity domains the bridge can operate on.
var ControllableDomains = []string{"button", "light", "switch", "cover", "fan"}

// EntitySummary is a read-only view of one entity from /api/states.
type EntitySummary struct {
	EntityID string
	State    string
	Name     string
}

// Lister queries the hub's entity states and filters them by domain.
// Results are fetched fresh on every call.
type Lister struct {
	hub Requester
}

// NewLister creates a Lister backed by hub.
func NewLister(hub Requester) *Lister {
	return &Lister{hub: hub}
}

// ListControllable returns every entity in ControllableDomains, in hub order.
func (l *Lister) ListControllable(ctx context.Context) []EntitySummary {
	return l.List(ctx, ControllableDomains...)
}

// ListButtons returns the button entities, in hub order.
func (l *Lister) ListButtons(ctx context.Context) []EntitySummary {
	return l.List(ctx, "button")
}

// List returns the entities whose id starts with one of domains followed by
// a dot. A failed or undecodable response yields an empty slice.
func (l *Lister) List(ctx context.Context, domains ...string) []EntitySummary {
	out := []EntitySummary{}
	if l == nil || l.hub == nil {
		return out
	}

	result := l.hub.Request(ctx, http.MethodGet, "states", nil)
	if !result.OK() {
		return out
	}
	states, ok := result.Body.([]any)
	if !ok {
		return out
	}

	prefixes := make([]string, 0, len(domains))
	for _, domain := range domains {
		prefixes = append(prefixes, strings.TrimSuffix(domain, ".")+".")
	}

	for _, item := range states {
		entity, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entityID, _ := entity["entity_id"].(string)
		if !hasAnyPrefix(entityID, prefixes) {
			continue
		}

		summary := EntitySummary{EntityID: entityID, Name: entityID}
		if state, ok := entity["state"]; ok && state != nil {
			summary.State = fmt.Sprint(state)
		}
		if attrs, ok := entity["attributes"].(map[string]any); ok {
			if name, ok := attrs["friendly_name"].(string); ok {
				summary.Name = name
			}
		}
		out = append(out, summary)
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
