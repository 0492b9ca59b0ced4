package routing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	BlockDelimiter = "||--||"

	keyAssistant = "assistant"
	keyQueue     = "queue-key"
	keyVoice     = "voice"
	keyUseDelay  = "use-delay"
	keyMode      = "assistant-mode"
)

// Parse reads a prompt's raw configuration. It returns nil for legacy values
// (a bare assistant id) and for JSON that fails validation. It never errors.
func Parse(raw string) *Config {
	cfg, _ := ParseStrict(raw)
	return cfg
}

// ParseStrict is Parse but reports why a JSON configuration was rejected.
// Legacy values yield (nil, nil).
func ParseStrict(raw string) (*Config, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		return parseJSON(trimmed)
	}
	if !strings.Contains(raw, BlockDelimiter) {
		return nil, nil
	}
	return parseTokens(raw), nil
}

func parseTokens(raw string) *Config {
	cfg := &Config{Mode: ModeText}
	for _, block := range strings.Split(raw, BlockDelimiter) {
		key, value, ok := strings.Cut(block, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case key == keyAssistant:
			cfg.AssistantID = value
		case strings.HasPrefix(key, keyQueue):
			if rel, ok := parseRelation(value); ok {
				cfg.Relations = append(cfg.Relations, rel)
			}
		case key == keyVoice:
			cfg.Voice = value
		case key == keyUseDelay:
			cfg.UseDelay = parseBool(value)
		case key == keyMode:
			cfg.Mode = NormalizeMode(value)
		}
	}
	return cfg
}

func parseRelation(value string) (Relation, bool) {
	q, kw, ok := strings.Cut(value, "-")
	if !ok {
		return Relation{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(q), 10, 64)
	if err != nil || id <= 0 {
		return Relation{}, false
	}
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return Relation{}, false
	}
	return Relation{QueueID: id, Keyword: kw}, true
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "sim", "s":
		return true
	default:
		return false
	}
}

// Serialize renders c in the token form. Parse(Serialize(c)) reproduces c
// when no value contains the block delimiter.
func Serialize(c Config) string {
	blocks := []string{keyAssistant + ":" + strings.TrimSpace(c.AssistantID)}
	for i, r := range c.Relations {
		blocks = append(blocks, fmt.Sprintf("%s%d:%d-%s", keyQueue, i+1, r.QueueID, strings.TrimSpace(r.Keyword)))
	}
	if v := strings.TrimSpace(c.Voice); v != "" {
		blocks = append(blocks, keyVoice+":"+v)
	}
	blocks = append(blocks, keyUseDelay+":"+strconv.FormatBool(c.UseDelay))
	blocks = append(blocks, keyMode+":"+NormalizeMode(c.Mode))
	return strings.Join(blocks, BlockDelimiter)
}

// jsonConfig is the JSON form of a configuration.
type jsonConfig struct {
	Assistant string `json:"assistant"`
	Relations []struct {
		Queue int64  `json:"queue"`
		Key   string `json:"key"`
	} `json:"relations"`
	Voice    string `json:"voice"`
	UseDelay bool   `json:"use_delay"`
	Mode     string `json:"mode"`
}

func parseJSON(raw string) (*Config, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("routing config: %w", err)
	}
	if err := configSchema().Validate(doc); err != nil {
		return nil, fmt.Errorf("routing config: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal([]byte(raw), &jc); err != nil {
		return nil, fmt.Errorf("routing config: %w", err)
	}
	cfg := &Config{
		AssistantID: strings.TrimSpace(jc.Assistant),
		Voice:       strings.TrimSpace(jc.Voice),
		UseDelay:    jc.UseDelay,
		Mode:        NormalizeMode(jc.Mode),
	}
	for _, r := range jc.Relations {
		cfg.Relations = append(cfg.Relations, Relation{QueueID: r.Queue, Keyword: strings.TrimSpace(r.Key)})
	}
	return cfg, nil
}
