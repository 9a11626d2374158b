package ussd

import "github.com/SmartInclusion/SmartInclusion/internal/models"

// Static answers for the information branches.
const (
	FarmingTipText = "Tip: Rotate crops to improve soil fertility."
	WeatherText    = "Weather: Light rains expected tomorrow."
)

// defaultOptions builds the top-level menu table keyed by selection token.
// Selection "6" is listed on the root menu but has no branch.
func defaultOptions() map[string]menuOption {
	return map[string]menuOption{
		"1": collectFlow{
			kind: models.RecordKindFarmer,
			prompts: []string{
				"Enter your name:",
				"Enter your location:",
				"Enter your farm size (e.g., 2 hectares):",
				"Enter main crops (comma separated):",
				"Enter livestock (comma separated, or 'none'):",
			},
			success: "Registration successful!",
			failure: "Registration failed. Please try again.",
		},
		"2": collectFlow{
			kind: models.RecordKindCropReport,
			prompts: []string{
				"Enter crop name:",
				"Enter quantity harvested (e.g., 100kg):",
			},
			success: "Crop production reported successfully!",
			failure: "Crop reporting failed. Please try again.",
		},
		"3": collectFlow{
			kind: models.RecordKindLivestockReport,
			prompts: []string{
				"Enter animal type (e.g., Goats):",
				"Enter number of animals (e.g., 10):",
			},
			success: "Livestock reported successfully!",
			failure: "Livestock reporting failed. Please try again.",
		},
		"4": infoOption{text: FarmingTipText},
		"5": infoOption{text: WeatherText},
	}
}
