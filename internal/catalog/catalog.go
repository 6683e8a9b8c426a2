// ABOUTME: Static registry of selectable provider/model combinations.
// ABOUTME: Pure lookup; entries may share a model id and differ only by parameters.

package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Effort is the reasoning-effort level for models that declare one.
type Effort string

const (
	EffortNone   Effort = ""
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Option is one selectable model configuration. Selection is by the whole
// combination, not the APIName alone: two Options may share an APIName and
// differ only in ReasoningEffort or ExtendedThinking.
type Option struct {
	APIName          string `toml:"api_name"`
	Display          string `toml:"display"`
	ReasoningEffort  Effort `toml:"reasoning_effort"`
	ExtendedThinking bool   `toml:"extended_thinking"`
	ThinkingBudget   int    `toml:"thinking_budget"`
}

// Key returns the combination identity of the option.
func (o Option) Key() string {
	return fmt.Sprintf("%s|%s|%t", o.APIName, o.ReasoningEffort, o.ExtendedThinking)
}

// Catalog is an ordered, immutable set of Options.
type Catalog struct {
	opts []Option
}

// Builtin returns the default catalog shipped with the client.
func Builtin() *Catalog {
	return &Catalog{opts: []Option{
		{APIName: "gpt-4.1", Display: "GPT-4.1"},
		{APIName: "gpt-4.1-mini", Display: "GPT-4.1 Mini"},
		{APIName: "o3", Display: "o3 (low)", ReasoningEffort: EffortLow},
		{APIName: "o3", Display: "o3 (medium)", ReasoningEffort: EffortMedium},
		{APIName: "o3", Display: "o3 (high)", ReasoningEffort: EffortHigh},
		{APIName: "claude-sonnet-4-20250514", Display: "Claude Sonnet 4"},
		{APIName: "claude-sonnet-4-20250514", Display: "Claude Sonnet 4 (thinking)", ExtendedThinking: true, ThinkingBudget: 8192},
		{APIName: "gemini-2.5-pro", Display: "Gemini 2.5 Pro"},
	}}
}

// New builds a catalog from the given options. The slice is copied.
func New(opts []Option) *Catalog {
	c := &Catalog{opts: make([]Option, len(opts))}
	copy(c.opts, opts)
	return c
}

// catalogFile is the TOML overlay format: a list of [[models]] tables.
type catalogFile struct {
	Models []Option `toml:"models"`
}

// LoadFile reads a TOML catalog file and returns a catalog built from its
// entries, replacing the built-in set.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no models", path)
	}

	for i, opt := range file.Models {
		if opt.APIName == "" {
			return nil, fmt.Errorf("catalog entry %d is missing api_name", i)
		}
	}

	return New(file.Models), nil
}

// Options returns a copy of all entries in declaration order.
func (c *Catalog) Options() []Option {
	out := make([]Option, len(c.opts))
	copy(out, c.opts)
	return out
}

// Lookup finds the option matching the full combination. The second return
// is false when no entry matches.
func (c *Catalog) Lookup(apiName string, effort Effort, thinking bool) (Option, bool) {
	for _, o := range c.opts {
		if o.APIName == apiName && o.ReasoningEffort == effort && o.ExtendedThinking == thinking {
			return o, true
		}
	}
	return Option{}, false
}

// Resolve returns the first catalog entry with the given model id, or a
// fallback option with a prettified display label when the id is unknown.
// Resolve never fails: legacy ids from persisted conversations still render.
func (c *Catalog) Resolve(apiName string) Option {
	for _, o := range c.opts {
		if o.APIName == apiName {
			return o
		}
	}
	return Option{APIName: apiName, Display: Prettify(apiName)}
}

// Prettify turns a raw model id into a display label: separators become
// spaces and each word is capitalized ("legacy_model-v2" -> "Legacy Model V2").
func Prettify(apiName string) string {
	if apiName == "" {
		return "Unknown Model"
	}
	words := strings.FieldsFunc(apiName, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
