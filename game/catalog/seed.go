package catalog

import (
	"fmt"

	"github.com/venloapp/questlock/server/model"
)

// Seed returns the built-in quest catalog.
func Seed() (*Catalog, error) {
	return New([]*QuestTemplate{
		{
			ID:              "quest-1",
			Title:           "A Confused Awakening",
			Description:     "Set the phone down and let the fog clear. Three minutes of stillness.",
			DurationMinutes: 3,
			RewardXP:        50,
			POISlug:         "old-mill",
			Story: func(char *model.Character) (string, error) {
				if char == nil {
					return "", fmt.Errorf("catalog: no character for story")
				}
				return fmt.Sprintf(
					"%s wakes beneath the old mill, head pounding, the world unfamiliar. "+
						"For three quiet minutes nothing demands their attention, and in that "+
						"silence the first memory returns: a road heading north.", char.Name), nil
			},
		},
		{
			ID:              "quest-2",
			Title:           "The Ferryman's Toll",
			Description:     "The ferryman only rows for the patient. Stay off the phone for ten minutes.",
			DurationMinutes: 10,
			RewardXP:        120,
			POISlug:         "river-crossing",
			Story: func(char *model.Character) (string, error) {
				if char == nil {
					return "", fmt.Errorf("catalog: no character for story")
				}
				return fmt.Sprintf(
					"The ferryman studies %s for a long while before pushing off. \"Most "+
						"can't sit still that long,\" he says. The far bank smells of woodsmoke "+
						"and something like home.", char.Name), nil
			},
		},
		{
			ID:              "quest-3",
			Title:           "Night Watch at the Beacon",
			Description:     "Keep the beacon. Twenty-five minutes without a glance at the screen.",
			DurationMinutes: 25,
			RewardXP:        300,
			POISlug:         "beacon-hill",
			Story: func(char *model.Character) (string, error) {
				if char == nil {
					return "", fmt.Errorf("catalog: no character for story")
				}
				return fmt.Sprintf(
					"From beacon hill %s watches the valley darken, lamp by lamp. Nothing "+
						"happens, which is the point. At level %d, the watch feels less like "+
						"waiting and more like owning the hour.", char.Name, char.Level), nil
			},
		},
		{
			ID:              "quest-4",
			Title:           "The Long Road North",
			Description:     "A full hour of real walking weather. Lock it and leave it.",
			DurationMinutes: 60,
			RewardXP:        800,
			POISlug:         "north-pass",
			Story: func(char *model.Character) (string, error) {
				if char == nil {
					return "", fmt.Errorf("catalog: no character for story")
				}
				return fmt.Sprintf(
					"An hour on the north road changes %s. The pass opens ahead, and "+
						"whatever was so urgent back in town has forgotten their name "+
						"entirely.", char.Name), nil
			},
		},
	})
}
