package routing

import (
	"strings"
)

const (
	ModeText  = "text"
	ModeVoice = "voice"
	ModeBoth  = "both"
)

// Config is the structured assistant configuration stored in a prompt.
type Config struct {
	AssistantID string
	Relations   []Relation
	Voice       string
	UseDelay    bool
	Mode        string
}

// Relation sends a ticket to QueueID when a reply contains Keyword.
type Relation struct {
	QueueID int64
	Keyword string
}

// Match returns the first relation whose keyword occurs in text, ignoring case.
func (c *Config) Match(text string) (Relation, bool) {
	if c == nil {
		return Relation{}, false
	}
	lower := strings.ToLower(text)
	for _, r := range c.Relations {
		kw := strings.ToLower(strings.TrimSpace(r.Keyword))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return r, true
		}
	}
	return Relation{}, false
}

func (c *Config) HasRelations() bool {
	return c != nil && len(c.Relations) > 0
}

// ResponseMode is Mode normalized, text for a nil config.
func (c *Config) ResponseMode() string {
	if c == nil {
		return ModeText
	}
	return NormalizeMode(c.Mode)
}

// AssistantID resolves the assistant to run for a raw prompt value. Legacy
// prompts hold nothing but the assistant id.
func AssistantID(raw string) string {
	if cfg := Parse(raw); cfg != nil {
		return strings.TrimSpace(cfg.AssistantID)
	}
	return strings.TrimSpace(raw)
}

func NormalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "voice", "audio", "voz":
		return ModeVoice
	case "both", "ambos":
		return ModeBoth
	default:
		return ModeText
	}
}
