// Package setup handles axe project initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/specfile"
	"github.com/bbugyi200/axe/templates"
)

const axeDirName = ".axe"

// Run initializes the .axe/ directory tree in the given project
// directory from the embedded templates.
func Run(projectDir string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, axeDirName)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	dirs := []string{
		"specs",
		"state",
		"state/logs",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplateFile("config.yaml", filepath.Join(base, "config.yaml")); err != nil {
		return err
	}

	return writeSampleSpec(base)
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// writeSampleSpec materializes the template ChangeSpec with fresh
// timestamps so the record validates from day one.
func writeSampleSpec(base string) error {
	data, err := fs.ReadFile(templates.FS, "changespec.yaml")
	if err != nil {
		return fmt.Errorf("read changespec template: %w", err)
	}

	var spec model.ChangeSpec
	if err := yamlv3.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parse changespec template: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	spec.CreatedAt = now
	spec.UpdatedAt = now

	store := specfile.NewStore(base)
	if err := store.Save(&spec); err != nil {
		return fmt.Errorf("write sample changespec: %w", err)
	}
	return nil
}
