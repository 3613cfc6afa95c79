package presets

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"discord-automod/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var builtin []byte

// Preset is a template rule shipped with the bot
type Preset struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Rule        models.AutomodRule `yaml:"rule"`
}

// Catalogue is an immutable set of presets. Installing a preset hands out a
// detached copy, so guild edits never touch the catalogue.
type Catalogue struct {
	presets []Preset
	byID    map[string]int
}

// Builtin parses the presets embedded in the binary
func Builtin() (*Catalogue, error) {
	return Parse(builtin)
}

// Parse builds a catalogue from YAML
func Parse(data []byte) (*Catalogue, error) {
	var list []Preset
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}

	c := &Catalogue{presets: list, byID: make(map[string]int, len(list))}
	for i, p := range list {
		if p.ID == "" {
			return nil, fmt.Errorf("preset %d has no id", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate preset %q", p.ID)
		}
		c.byID[p.ID] = i

		sample := c.instantiate(p, "validate")
		if err := sample.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.ID, err)
		}
	}
	return c, nil
}

func (c *Catalogue) Get(id string) (Preset, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Preset{}, false
	}
	p := c.presets[i]
	p.Rule = *p.Rule.Clone()
	return p, true
}

// IDs returns the preset ids in catalogue order
func (c *Catalogue) IDs() []string {
	ids := make([]string, 0, len(c.presets))
	for _, p := range c.presets {
		ids = append(ids, p.ID)
	}
	return ids
}

func (c *Catalogue) List() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, id := range c.IDs() {
		p, _ := c.Get(id)
		out = append(out, p)
	}
	return out
}

// Instantiate returns a new enabled rule for guildID built from the preset
func (c *Catalogue) Instantiate(id, guildID string) (*models.AutomodRule, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %s): %w", id, strings.Join(c.IDs(), ", "), models.ErrNotFound)
	}
	return c.instantiate(c.presets[i], guildID), nil
}

func (c *Catalogue) instantiate(p Preset, guildID string) *models.AutomodRule {
	r := p.Rule.Clone()
	r.ID = 0
	r.GuildID = guildID
	r.Name = p.Name
	r.Enabled = true
	r.IsPreset = true
	r.PresetID = p.ID
	if r.MatchMode == "" {
		r.MatchMode = models.MatchAny
	}
	return r
}

// Contains reports whether id names a preset
func (c *Catalogue) Contains(id string) bool {
	return slices.Contains(c.IDs(), id)
}
