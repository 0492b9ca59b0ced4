package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKeywords are the phrases that hand a ticket back to its queue when
// the prompt defines no relations of its own.
func DefaultKeywords() []string {
	return []string{
		"pedido confirmado",
		"call confirmada",
		"consulta confirmada",
		"compra aprovada",
		"transferir agendamento",
		"suporte finalizado",
	}
}

type keywordFile struct {
	Keywords []string `yaml:"keywords"`
}

// LoadKeywords reads a YAML file of the form `keywords: [..]`. An empty path
// yields DefaultKeywords.
func LoadKeywords(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultKeywords(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	var f keywordFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse keywords file: %w", err)
	}
	out := make([]string, 0, len(f.Keywords))
	for _, k := range f.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("keywords file %s lists no keywords", path)
	}
	return out, nil
}

// MatchKeyword reports the first keyword occurring in text, ignoring case.
func MatchKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return k, true
		}
	}
	return "", false
}
