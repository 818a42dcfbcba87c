package kernel

import (
	"math"
	"strings"
)

// Material is display metadata attached to a mesh. It never influences
// geometry and is excluded from the content hash.
type Material struct {
	Name      string     `json:"name"`
	Color     [3]float64 `json:"color"` // RGB in [0,1]
	Metallic  float64    `json:"metallic"`
	Roughness float64    `json:"roughness"`
	Opacity   float64    `json:"opacity"`
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// NewMaterial returns a material with every scalar clamped to [0,1].
func NewMaterial(name string, r, g, b, metallic, roughness, opacity float64) Material {
	return Material{
		Name:      name,
		Color:     [3]float64{clamp01(r), clamp01(g), clamp01(b)},
		Metallic:  clamp01(metallic),
		Roughness: clamp01(roughness),
		Opacity:   clamp01(opacity),
	}
}

// Presets for common shop materials, keyed by lowercase short name.
var materialPresets = []struct {
	key string
	mat Material
}{
	{"aluminum", NewMaterial("Aluminum 6061-T6", 0.75, 0.77, 0.78, 0.85, 0.3, 1)},
	{"steel", NewMaterial("Stainless Steel 304", 0.70, 0.72, 0.73, 0.95, 0.2, 1)},
	{"plastic", NewMaterial("ABS Plastic", 0.85, 0.85, 0.90, 0, 0.5, 1)},
	{"brass", NewMaterial("Brass", 0.88, 0.78, 0.50, 0.90, 0.25, 1)},
	{"copper", NewMaterial("Copper", 0.95, 0.64, 0.54, 0.95, 0.20, 1)},
	{"titanium", NewMaterial("Titanium", 0.66, 0.68, 0.70, 0.90, 0.35, 1)},
}

// MaterialPreset looks up a preset by short name, case-insensitively.
func MaterialPreset(name string) (Material, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range materialPresets {
		if p.key == name {
			return p.mat, true
		}
	}
	return Material{}, false
}

// MaterialPresetNames lists the preset keys in a stable order.
func MaterialPresetNames() []string {
	names := make([]string, len(materialPresets))
	for i, p := range materialPresets {
		names[i] = p.key
	}
	return names
}
