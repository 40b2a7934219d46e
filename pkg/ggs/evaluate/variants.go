package evaluate

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/tagging"
)

// Variant replaces the threshold tables of a tagging config. Omitted
// tables keep the base values.
type Variant struct {
	Primary    *[]tagging.Threshold `json:"primary,omitempty" yaml:"primary" toml:"primary"`
	Secondary  *[]tagging.Threshold `json:"secondary,omitempty" yaml:"secondary" toml:"secondary"`
	DefaultTag *string              `json:"default_tag,omitempty" yaml:"default_tag" toml:"default_tag"`
}

// Apply returns base with the variant's tables.
func (v Variant) Apply(base tagging.Config) tagging.Config {
	out := base
	if v.Primary != nil {
		out.Primary = *v.Primary
	}
	if v.Secondary != nil {
		out.Secondary = *v.Secondary
	}
	if v.DefaultTag != nil {
		out.DefaultTag = *v.DefaultTag
	}
	return out
}

// ParseVariants decodes a document mapping variant names to threshold
// tables and applies each to base. ext is ".yaml", ".yml" or ".toml".
// Every resulting config must validate.
func ParseVariants(data []byte, ext string, base tagging.Config) (map[string]tagging.Config, error) {
	var raw map[string]Variant
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: threshold variants: %v", internalerr.ErrInvalidConfig, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: threshold variants: %v", internalerr.ErrInvalidConfig, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported variants format %q", internalerr.ErrInvalidConfig, ext)
	}

	out := make(map[string]tagging.Config, len(raw))
	for name, v := range raw {
		cfg := v.Apply(base)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("variant %q: %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}
