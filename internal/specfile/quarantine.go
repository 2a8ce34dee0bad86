package specfile

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves a corrupt record file under .axe/quarantine/ with a
// timestamped name so nothing keeps tripping over it.
func Quarantine(axeDir, filePath string) error {
	quarantineDir := filepath.Join(axeDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405")
	quarantineName := fmt.Sprintf("%s.%s.corrupt", baseName, timestamp)
	quarantinePath := filepath.Join(quarantineDir, quarantineName)

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}

	log.Printf("quarantined corrupt changespec: %s → %s", filePath, quarantinePath)
	return nil
}

// RestoreFromBackup replaces filePath with its .bak copy, provided the
// backup still parses as a valid record.
func RestoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	if _, err := decodeSpec(content); err != nil {
		return fmt.Errorf("backup is also corrupt: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}

	log.Printf("restored changespec from backup: %s → %s", bakPath, filePath)
	return nil
}

// RecoverCorruptFile runs the recovery chain for a record that failed
// to parse: quarantine it, then try the .bak. ChangeSpecs hold real
// user state, so unlike daemon snapshots there is no skeleton to fall
// back to — when the backup is also gone the record is simply skipped
// until someone repairs it.
func RecoverCorruptFile(axeDir, filePath string) error {
	if err := Quarantine(axeDir, filePath); err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}

	if err := RestoreFromBackup(filePath); err != nil {
		return fmt.Errorf("backup restore failed: %w", err)
	}
	return nil
}
