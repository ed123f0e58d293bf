package prompts

// KnobCount is the fixed number of prompt knobs a layout must fill.
// Configuration sources are padded or trimmed to exactly this count.
const KnobCount = 16

// DefaultBank is the built-in knob layout used when no generative
// configuration source is available: a spread of genres, textures, and
// moods, each with a stable color tag for the UI.
var DefaultBank = []Config{
	{Text: "Bossa Nova", Color: "#9900ff"},
	{Text: "Chillwave", Color: "#5200ff"},
	{Text: "Drum and Bass", Color: "#ff25f6"},
	{Text: "Post Punk", Color: "#2af6de"},
	{Text: "Shoegaze", Color: "#ffdd28"},
	{Text: "Funk", Color: "#2af6de"},
	{Text: "Chiptune", Color: "#9900ff"},
	{Text: "Lush Strings", Color: "#3dffab"},
	{Text: "Sparkling Arpeggios", Color: "#d8ff3e"},
	{Text: "Staccato Rhythms", Color: "#d9b2ff"},
	{Text: "Punchy Kick", Color: "#3dffab"},
	{Text: "Dubstep", Color: "#ffdd28"},
	{Text: "K Pop", Color: "#ff25f6"},
	{Text: "Neo Soul", Color: "#5200ff"},
	{Text: "Trip Hop", Color: "#d8ff3e"},
	{Text: "Thrash", Color: "#d9b2ff"},
}

// palette is the color pool for generated layouts; generated entries
// missing a color are assigned one round-robin.
var palette = []string{
	"#9900ff", "#5200ff", "#ff25f6", "#2af6de",
	"#ffdd28", "#3dffab", "#d8ff3e", "#d9b2ff",
}

// NormalizeBank pads or trims a layout to exactly KnobCount entries,
// filling gaps from DefaultBank and assigning palette colors to entries
// that lack one.
func NormalizeBank(configs []Config) []Config {
	out := make([]Config, 0, KnobCount)
	for _, c := range configs {
		if c.Text == "" {
			continue
		}
		if c.Color == "" {
			c.Color = palette[len(out)%len(palette)]
		}
		out = append(out, c)
		if len(out) == KnobCount {
			return out
		}
	}
	for _, c := range DefaultBank {
		if len(out) == KnobCount {
			break
		}
		out = append(out, c)
	}
	return out
}
