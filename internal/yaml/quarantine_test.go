package yaml

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestQuarantine(t *testing.T) {
	stateDir := t.TempDir()
	filePath := filepath.Join(stateDir, "production.yaml")
	os.WriteFile(filePath, []byte("tasks: [\n"), 0644)

	target, err := Quarantine(stateDir, filePath, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("original file should be removed after quarantine")
	}
	want := filepath.Join(stateDir, QuarantineDir, "production.yaml.20260302T090000.corrupt")
	if target != want {
		t.Errorf("quarantined to %s, want %s", target, want)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("quarantined file missing: %v", err)
	}
}

func TestRestoreFromBackup(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "production.yaml")
	valid := []byte("schema_version: 1\nfile_type: production_snapshot\nname: seq010\n")
	os.WriteFile(filePath+BackupSuffix, valid, 0644)

	if err := RestoreFromBackup(filePath, nil); err != nil {
		t.Fatalf("RestoreFromBackup failed: %v", err)
	}
	got, _ := os.ReadFile(filePath)
	if string(got) != string(valid) {
		t.Errorf("restored content mismatch: %q", got)
	}
}

func TestRestoreFromBackup_Rejected(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "production.yaml")

	if err := RestoreFromBackup(filePath, nil); err == nil {
		t.Fatal("expected error without backup")
	}

	os.WriteFile(filePath+BackupSuffix, []byte("schema_version: 1\n"), 0644)
	reject := func([]byte) error { return errors.New("missing file_type") }
	err := RestoreFromBackup(filePath, reject)
	if err == nil || !strings.Contains(err.Error(), "also corrupted") {
		t.Fatalf("expected the validator to reject the backup, got %v", err)
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("a rejected backup must not be restored")
	}
}

func TestRecoverCorruptedFile(t *testing.T) {
	validate := func(b []byte) error { return ValidateSchemaHeaderFromBytes(b, FileTypeProductionSnapshot) }

	t.Run("from backup", func(t *testing.T) {
		stateDir := t.TempDir()
		filePath := filepath.Join(stateDir, "production.yaml")
		os.WriteFile(filePath, []byte("tasks: [\n"), 0644)
		os.WriteFile(filePath+BackupSuffix, []byte("schema_version: 1\nfile_type: production_snapshot\nname: seq010\n"), 0644)

		how, err := RecoverCorruptedFile(stateDir, filePath, FileTypeProductionSnapshot, "seq010", validate)
		if err != nil {
			t.Fatalf("RecoverCorruptedFile failed: %v", err)
		}
		if how != RecoveredFromBackup {
			t.Errorf("expected recovery from backup, got %s", how)
		}
		if err := ValidateSchemaHeader(filePath, FileTypeProductionSnapshot); err != nil {
			t.Errorf("recovered file invalid: %v", err)
		}
	})

	t.Run("to skeleton", func(t *testing.T) {
		stateDir := t.TempDir()
		filePath := filepath.Join(stateDir, "production.yaml")
		os.WriteFile(filePath, []byte("tasks: [\n"), 0644)

		how, err := RecoverCorruptedFile(stateDir, filePath, FileTypeProductionSnapshot, "seq010", validate)
		if err != nil {
			t.Fatalf("RecoverCorruptedFile failed: %v", err)
		}
		if how != RecoveredToSkeleton {
			t.Errorf("expected a skeleton, got %s", how)
		}
		var skel map[string]any
		if err := Read(filePath, &skel); err != nil {
			t.Fatal(err)
		}
		if skel["name"] != "seq010" || skel["file_type"] != FileTypeProductionSnapshot {
			t.Errorf("unexpected skeleton %v", skel)
		}
		entries, _ := os.ReadDir(filepath.Join(stateDir, QuarantineDir))
		if len(entries) != 1 {
			t.Errorf("expected one quarantined file, got %d", len(entries))
		}
	})
}
