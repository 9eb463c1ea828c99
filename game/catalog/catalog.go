package catalog

import (
	"fmt"

	"github.com/venloapp/questlock/server/model"
)

// StoryFn generates the narrative text for a completed quest from the
// character that completed it. It must be pure: the engine calls it exactly
// once per completion and freezes the result into the outcome.
type StoryFn func(char *model.Character) (string, error)

// QuestTemplate is an immutable catalog entry. A quest is one attempt at a
// template: keep the phone locked for DurationMinutes to earn RewardXP and
// reveal the template's point of interest on the map.
type QuestTemplate struct {
	ID              string
	Title           string
	Description     string
	DurationMinutes float64
	RewardXP        int
	POISlug         string
	Story           StoryFn
}

// DurationMs returns the quest duration in wall-clock milliseconds.
func (t *QuestTemplate) DurationMs() int64 {
	return int64(t.DurationMinutes * 60_000)
}

// Catalog is a read-only set of quest templates keyed by ID.
type Catalog struct {
	byID  map[string]*QuestTemplate
	order []*QuestTemplate
}

// New builds a Catalog from the given templates. Duplicate or invalid
// entries are rejected so a bad seed fails at startup, not mid-quest.
func New(templates []*QuestTemplate) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*QuestTemplate, len(templates))}
	for _, tpl := range templates {
		if tpl.ID == "" {
			return nil, fmt.Errorf("catalog: template with empty id")
		}
		if tpl.DurationMinutes <= 0 {
			return nil, fmt.Errorf("catalog: template %q has non-positive duration", tpl.ID)
		}
		if tpl.RewardXP < 0 {
			return nil, fmt.Errorf("catalog: template %q has negative reward", tpl.ID)
		}
		if _, dup := c.byID[tpl.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate template id %q", tpl.ID)
		}
		c.byID[tpl.ID] = tpl
		c.order = append(c.order, tpl)
	}
	return c, nil
}

// Get returns the template with the given ID, or nil.
func (c *Catalog) Get(id string) *QuestTemplate {
	return c.byID[id]
}

// All returns templates in seed order.
func (c *Catalog) All() []*QuestTemplate {
	out := make([]*QuestTemplate, len(c.order))
	copy(out, c.order)
	return out
}
