// Package lexicon loads the static keyword tiers and crisis resources used by
// the safety pipeline. Data is read once at startup, from a file when a path
// is configured and from the embedded defaults otherwise.
package lexicon

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var defaults embed.FS

// ErrInvalid is returned when lexicon data is malformed or empty.
var ErrInvalid = errors.New("invalid lexicon data")

// Tier is a named group of trigger phrases sharing a maximum weight.
type Tier struct {
	Name      string
	WeightMax int
	Phrases   []string
}

// Keywords is a validated set of keyword tiers.
type Keywords struct {
	Tiers []Tier
}

// PhraseCount returns the total number of trigger phrases.
func (k *Keywords) PhraseCount() int {
	n := 0
	for _, t := range k.Tiers {
		n += len(t.Phrases)
	}
	return n
}

type tierFile struct {
	WeightMax *int     `yaml:"weight_max"`
	Keywords  []string `yaml:"keywords"`
}

// LoadKeywords reads keyword tiers from path, or the embedded defaults when
// path is empty. YAML and JSON are both accepted.
func LoadKeywords(path string) (*Keywords, error) {
	data, err := read(path, "data/risk_keywords.yaml")
	if err != nil {
		return nil, fmt.Errorf("load risk keywords: %w", err)
	}
	k, err := ParseKeywords(data)
	if err != nil {
		return nil, fmt.Errorf("load risk keywords from %s: %w", source(path), err)
	}
	return k, nil
}

// ParseKeywords decodes and validates keyword tiers.
func ParseKeywords(data []byte) (*Keywords, error) {
	var raw map[string]tierFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no tiers defined", ErrInvalid)
	}

	k := &Keywords{Tiers: make([]Tier, 0, len(raw))}
	for name, t := range raw {
		if t.WeightMax == nil {
			return nil, fmt.Errorf("%w: tier %q has no weight_max", ErrInvalid, name)
		}
		if *t.WeightMax < 0 {
			return nil, fmt.Errorf("%w: tier %q has negative weight", ErrInvalid, name)
		}
		phrases := make([]string, 0, len(t.Keywords))
		for _, p := range t.Keywords {
			p = Normalize(strings.TrimSpace(p))
			if p != "" {
				phrases = append(phrases, p)
			}
		}
		if len(phrases) == 0 {
			return nil, fmt.Errorf("%w: tier %q has no keywords", ErrInvalid, name)
		}
		k.Tiers = append(k.Tiers, Tier{Name: name, WeightMax: *t.WeightMax, Phrases: phrases})
	}

	// Highest weight first so logs and explanations read in severity order.
	sort.Slice(k.Tiers, func(i, j int) bool {
		if k.Tiers[i].WeightMax != k.Tiers[j].WeightMax {
			return k.Tiers[i].WeightMax > k.Tiers[j].WeightMax
		}
		return k.Tiers[i].Name < k.Tiers[j].Name
	})
	return k, nil
}

// LoadResources reads the crisis resource list from path, or the embedded
// defaults when path is empty.
func LoadResources(path string) ([]domain.CrisisResource, error) {
	data, err := read(path, "data/crisis_resources.yaml")
	if err != nil {
		return nil, fmt.Errorf("load crisis resources: %w", err)
	}
	res, err := ParseResources(data)
	if err != nil {
		return nil, fmt.Errorf("load crisis resources from %s: %w", source(path), err)
	}
	return res, nil
}

// ParseResources decodes and validates an ordered crisis resource list.
func ParseResources(data []byte) ([]domain.CrisisResource, error) {
	var res []domain.CrisisResource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: no crisis resources defined", ErrInvalid)
	}
	for i, r := range res {
		if r.Name == "" || r.Number == "" {
			return nil, fmt.Errorf("%w: resource %d needs a name and a number", ErrInvalid, i)
		}
	}
	return res, nil
}

// Normalize lowercases text and folds typographic apostrophes so that
// phrases like "i can’t" match "i can't".
func Normalize(s string) string {
	return apostrophes.Replace(strings.ToLower(s))
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

func read(path, embedded string) ([]byte, error) {
	if path == "" {
		return defaults.ReadFile(embedded)
	}
	return os.ReadFile(path)
}

func source(path string) string {
	if path == "" {
		return "embedded defaults"
	}
	return path
}
