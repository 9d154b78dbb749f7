package drop

import "time"

// Theme is one entry of the daily prompt rotation.
type Theme struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Themes is the fixed rotation. Order matters: the index is derived from the
// day of the year.
var Themes = []Theme{
	{
		Title:       "Urban Soundscapes",
		Description: "Capture the sounds that define our urban environment. Street noise, construction, conversations, traffic, music bleeding from windows - what audio defines city life for you?",
	},
	{
		Title:       "Emotional Sounds",
		Description: "What sounds trigger specific emotions? Record or share audio that makes you feel joy, sadness, comfort, anxiety, or nostalgia.",
	},
	{
		Title:       "Memory Triggers",
		Description: "Sounds that transport you to another time or place. Childhood memories, significant moments, or familiar environments.",
	},
	{
		Title:       "Workplace Audio",
		Description: "The soundtrack of productivity. Keyboard clicks, coffee machines, meeting room chatter, or the sounds that help you focus.",
	},
	{
		Title:       "Nature & Silence",
		Description: "Natural soundscapes and the spaces between sounds. Birds, water, wind, or the quality of different silences.",
	},
	{
		Title:       "Cultural Audio Markers",
		Description: "Sounds that represent culture, tradition, or community. Music, languages, celebrations, or rituals.",
	},
	{
		Title:       "Technological Sounds",
		Description: "The audio of our digital age. Notifications, startup sounds, dial tones, or the hum of devices.",
	},
}

// ThemeFor returns the theme for the calendar day of t, in t's location.
// Jan 1 is day 1, so it maps to Themes[1].
func ThemeFor(t time.Time) Theme {
	return Themes[t.YearDay()%len(Themes)]
}
