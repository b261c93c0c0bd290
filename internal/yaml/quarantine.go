package yaml

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

// Recovery tells how a corrupted file was replaced.
type Recovery string

const (
	RecoveredFromBackup Recovery = "backup"
	RecoveredToSkeleton Recovery = "skeleton"
)

// QuarantineDir is where corrupted files are kept, under the state directory.
const QuarantineDir = "quarantine"

// Quarantine moves filePath out of the way into stateDir/quarantine and
// returns its new location.
func Quarantine(stateDir, filePath string, now time.Time) (string, error) {
	dir := filepath.Join(stateDir, QuarantineDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), now.Format("20060102T150405"))
	target := filepath.Join(dir, name)
	if err := os.Rename(filePath, target); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	log.Printf("quarantined corrupted file: %s -> %s", filePath, target)
	return target, nil
}

// RestoreFromBackup replaces filePath with its backup when the backup
// passes validate. A nil validate only checks that the backup is YAML.
func RestoreFromBackup(filePath string, validate func([]byte) error) error {
	bakPath := filePath + BackupSuffix
	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if validate == nil {
		validate = validateYAML
	}
	if err := validate(content); err != nil {
		return fmt.Errorf("backup %s is also corrupted: %w", bakPath, err)
	}
	if err := AtomicWriteRaw(filePath, content); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	log.Printf("restored from backup: %s -> %s", bakPath, filePath)
	return nil
}

// GenerateSkeleton writes an empty but valid file of the given type.
func GenerateSkeleton(filePath, fileType, name string) error {
	content, err := yamlv3.Marshal(skeletonFor(fileType, name))
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}
	if err := AtomicWriteRaw(filePath, content); err != nil {
		return fmt.Errorf("write skeleton: %w", err)
	}
	log.Printf("generated skeleton: %s (type: %s)", filePath, fileType)
	return nil
}

// RecoverCorruptedFile quarantines filePath, then restores its backup or,
// failing that, writes an empty skeleton in its place.
func RecoverCorruptedFile(stateDir, filePath, fileType, name string, validate func([]byte) error) (Recovery, error) {
	if _, err := Quarantine(stateDir, filePath, time.Now()); err != nil {
		return "", fmt.Errorf("quarantine failed: %w", err)
	}
	err := RestoreFromBackup(filePath, validate)
	if err == nil {
		return RecoveredFromBackup, nil
	}
	log.Printf("backup restore failed for %s: %v; writing a skeleton", filePath, err)
	if err := GenerateSkeleton(filePath, fileType, name); err != nil {
		return "", fmt.Errorf("skeleton generation failed: %w", err)
	}
	return RecoveredToSkeleton, nil
}

func skeletonFor(fileType, name string) any {
	switch fileType {
	case FileTypeProductionSnapshot:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      fileType,
			"name":           name,
			"tasks":          []any{},
			"dependencies":   []any{},
			"time_logs":      []any{},
			"reviews":        []any{},
		}
	default:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      fileType,
		}
	}
}
