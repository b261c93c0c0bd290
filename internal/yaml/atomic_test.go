package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

func TestAtomicWrite_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "production.yaml")

	data := map[string]any{"name": "seq010", "tasks": []string{"task_a"}}
	if err := AtomicWrite(path, data); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	var result map[string]any
	if err := Read(path, &result); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if result["name"] != "seq010" {
		t.Errorf("name: got %v, want %q", result["name"], "seq010")
	}
	if _, err := os.Stat(path + BackupSuffix); !os.IsNotExist(err) {
		t.Error("first write must not leave a backup")
	}
}

func TestAtomicWrite_CreatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "production.yaml")

	if err := AtomicWrite(path, map[string]string{"version": "1"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, map[string]string{"version": "2"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	bakContent, err := os.ReadFile(path + BackupSuffix)
	if err != nil {
		t.Fatalf("ReadFile .bak failed: %v", err)
	}
	var bakData map[string]string
	if err := yamlv3.Unmarshal(bakContent, &bakData); err != nil {
		t.Fatalf("Unmarshal .bak failed: %v", err)
	}
	if bakData["version"] != "1" {
		t.Errorf("backup version: got %q, want %q", bakData["version"], "1")
	}
}

func TestAtomicWriteRaw_RejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "production.yaml")
	if err := AtomicWrite(path, map[string]string{"version": "1"}); err != nil {
		t.Fatal(err)
	}

	if err := AtomicWriteRaw(path, []byte("tasks: [\n")); err == nil {
		t.Fatal("expected validation error")
	}

	var data map[string]string
	if err := Read(path, &data); err != nil || data["version"] != "1" {
		t.Errorf("original file must be untouched, got %v, %v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".stalker-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	var out map[string]any
	if err := Read(filepath.Join(dir, "missing.yaml"), &out); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("a: [\n"), 0644)
	if err := Read(bad, &out); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}
