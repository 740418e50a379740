package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseProject loads a project file from disk, validates it, and returns the resulting model.
func ParseProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, divaerrors.NewParseError(path, 0, err)
	}
	return ParseProjectBytes(path, data)
}

// ParseProjectBytes parses and validates an in-memory project document. path
// is only used in error messages.
func ParseProjectBytes(path string, data []byte) (*Project, error) {
	var cfg Project
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, divaerrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateProject(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WriteProject validates cfg and writes it to path, replacing the file atomically.
func WriteProject(path string, cfg *Project) error {
	if err := ValidateProject(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".project-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp project file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write project: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close project: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace project: %w", err)
	}
	return nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
