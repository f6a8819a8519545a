package document

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/timeline2video/internal/system"
)

// Write stores the project as YAML at path.
func Write(p *Project, path string) error {
	if p.Version == "" {
		p.Version = CurrentVersion
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads and validates the project at path.
func Read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GeneratePath returns a timestamped project file name in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("project_%s.yaml", now.Format("2006-01-02_15-04-05")))
}

// FindLatest returns the most recently modified project file in dir.
func FindLatest(dir string) (string, error) {
	return system.FindLatestFile(dir, ".yaml", ".yml")
}
