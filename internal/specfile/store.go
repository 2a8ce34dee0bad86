package specfile

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bbugyi200/axe/internal/lock"
	"github.com/bbugyi200/axe/internal/model"
)

// Store is the ChangeSpec record store over .axe/specs/*.yaml. Every
// mutation is load → mutate → full-record atomic rewrite under a
// per-name mutex, never an in-place text edit.
type Store struct {
	axeDir string
	locks  *lock.MutexMap
}

func NewStore(axeDir string) *Store {
	return &Store{
		axeDir: axeDir,
		locks:  lock.NewMutexMap(),
	}
}

// SpecsDir returns the records directory.
func (s *Store) SpecsDir() string {
	return filepath.Join(s.axeDir, "specs")
}

// Path returns the file backing the named record.
func (s *Store) Path(name string) string {
	return filepath.Join(s.SpecsDir(), name+".yaml")
}

// Load reads and validates one record.
func (s *Store) Load(name string) (*model.ChangeSpec, error) {
	content, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read changespec %q: %w", name, err)
	}
	spec, err := decodeSpec(content)
	if err != nil {
		return nil, fmt.Errorf("changespec %q: %w", name, err)
	}
	return spec, nil
}

// LoadAll reads every record in the specs directory. Corrupt files are
// run through the quarantine/backup recovery chain and, failing that,
// skipped with a log line — a single bad record never fails the scan.
// Returns the loaded specs and the count of corrupt files encountered.
func (s *Store) LoadAll() ([]*model.ChangeSpec, int, error) {
	dir := s.SpecsDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read specs dir: %w", err)
	}

	var specs []*model.ChangeSpec
	corrupt := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("specfile: read %s: %v", name, err)
			continue
		}
		spec, err := decodeSpec(content)
		if err != nil {
			corrupt++
			log.Printf("specfile: corrupt record %s: %v", name, err)
			if rerr := RecoverCorruptFile(s.axeDir, path); rerr != nil {
				log.Printf("specfile: recovery failed for %s: %v — skipping", name, rerr)
				continue
			}
			spec, err = s.Load(strings.TrimSuffix(name, ".yaml"))
			if err != nil {
				log.Printf("specfile: recovered record still unreadable %s: %v", name, err)
				continue
			}
		}
		specs = append(specs, spec)
	}
	return specs, corrupt, nil
}

// Save writes one record atomically.
func (s *Store) Save(spec *model.ChangeSpec) error {
	if err := os.MkdirAll(s.SpecsDir(), 0755); err != nil {
		return fmt.Errorf("create specs dir: %w", err)
	}
	return AtomicWriteSpec(s.Path(spec.Name), spec)
}

// Create writes a brand-new record, failing if one already exists.
func (s *Store) Create(spec *model.ChangeSpec) error {
	s.locks.Lock(spec.Name)
	defer s.locks.Unlock(spec.Name)

	if _, err := os.Stat(s.Path(spec.Name)); err == nil {
		return fmt.Errorf("changespec %q already exists", spec.Name)
	}
	return s.Save(spec)
}

// Update applies fn to the named record under its mutex and rewrites
// the whole record atomically. fn returning an error aborts without
// writing. The modification timestamp bumps on every successful update.
func (s *Store) Update(name string, fn func(*model.ChangeSpec) error) error {
	s.locks.Lock(name)
	defer s.locks.Unlock(name)

	spec, err := s.Load(name)
	if err != nil {
		return err
	}
	if err := fn(spec); err != nil {
		return err
	}
	spec.Touch()
	return s.Save(spec)
}

// SetStatus requests a stored-status transition, rejecting unreachable
// edges.
func (s *Store) SetStatus(name string, to model.Status) error {
	return s.Update(name, func(spec *model.ChangeSpec) error {
		if err := model.ValidateStatusTransition(spec.Status, to); err != nil {
			return err
		}
		spec.Status = to
		return nil
	})
}

// Revert moves the record to reverted. Valid from any non-submitted,
// non-reverted status.
func (s *Store) Revert(name string) error {
	return s.SetStatus(name, model.StatusReverted)
}

// Restore moves a reverted record back to unstarted. keepEntries
// controls whether the accumulated sub-entry lists survive.
func (s *Store) Restore(name string, keepEntries bool) error {
	return s.Update(name, func(spec *model.ChangeSpec) error {
		if err := model.ValidateStatusTransition(spec.Status, model.StatusUnstarted); err != nil {
			return err
		}
		spec.Status = model.StatusUnstarted
		if !keepEntries {
			spec.Commits = nil
			spec.Hooks = nil
			spec.Comments = nil
			spec.Mentors = nil
		}
		return nil
	})
}
