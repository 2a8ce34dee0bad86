// Package specfile stores ChangeSpec records as YAML files under
// .axe/specs/, with atomic writes, per-record locking, and a
// quarantine/recovery chain for corrupt files.
package specfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/bbugyi200/axe/internal/model"
)

// AtomicWriteSpec marshals and writes a ChangeSpec record atomically:
// temp file + fsync + validate-by-reparse + .bak of the previous
// version + rename. A reader never observes a partial record.
func AtomicWriteSpec(path string, spec *model.ChangeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid changespec: %w", err)
	}
	content, err := yamlv3.Marshal(spec)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return atomicWriteRaw(path, content)
}

func atomicWriteRaw(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".axe-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure path.
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Validate by re-reading what actually hit disk.
	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if _, err := decodeSpec(written); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

func decodeSpec(content []byte) (*model.ChangeSpec, error) {
	var spec model.ChangeSpec
	if err := yamlv3.Unmarshal(content, &spec); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
