package rag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Keywords maps a lowercase domain term to the score bonus it adds when the
// term appears in both the question and the chunk.
type Keywords map[string]float64

// DefaultKeywords returns the built-in bonus terms for the indexed content.
func DefaultKeywords() Keywords {
	return Keywords{
		"neural":   0.15,
		"network":  0.15,
		"graph":    0.15,
		"tissue":   0.15,
		"vibe":     0.2,
		"coding":   0.2,
		"karpathy": 0.25,
	}
}

// keywordFile is the on-disk layout shared by the TOML and YAML formats:
//
//	[keywords]
//	neural = 0.15
type keywordFile struct {
	Keywords map[string]float64 `toml:"keywords" yaml:"keywords"`
}

// LoadKeywords reads a keyword weight file. The format is chosen by
// extension: .toml, .yaml, or .yml. Weights must be in [0, 1].
func LoadKeywords(path string) (Keywords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rag: open keywords file: %w", err)
	}
	defer f.Close()

	var kf keywordFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.NewDecoder(f).Decode(&kf); err != nil {
			return nil, fmt.Errorf("rag: parse keywords file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(&kf); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rag: parse keywords file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("rag: unsupported keywords file extension %q (want .toml, .yaml or .yml)", ext)
	}

	kw := make(Keywords, len(kf.Keywords))
	for term, w := range kf.Keywords {
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("rag: keyword %q weight %v out of range [0,1]", term, w)
		}
		kw[strings.ToLower(strings.TrimSpace(term))] = w
	}
	return kw, nil
}
