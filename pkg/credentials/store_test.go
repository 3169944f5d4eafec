package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_SetAndGet(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	if err := store.Set("openai", "sk-test-1234"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cred, err := store.Get("openai")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cred.APIKey != "sk-test-1234" {
		t.Errorf("APIKey mismatch: got %s", cred.APIKey)
	}
	if cred.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}
	if got := store.APIKey("openai"); got != "sk-test-1234" {
		t.Errorf("APIKey() = %q", got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	_, err := store.Get("anthropic")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if got := store.APIKey("anthropic"); got != "" {
		t.Errorf("Expected empty key, got %q", got)
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	if err := store.Set("google", "g-key"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Delete("google"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("google"); err == nil {
		t.Fatal("Expected error after delete")
	}
	if err := store.Delete("google"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_ListSorted(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	for _, p := range []string{"openrouter", "anthropic", "openai"} {
		if err := store.Set(p, "key-"+p); err != nil {
			t.Fatalf("Set(%s) failed: %v", p, err)
		}
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 credentials, got %d", len(list))
	}
	if list[0].Provider != "anthropic" || list[2].Provider != "openrouter" {
		t.Errorf("Unexpected order: %v", list)
	}
}

func TestStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewStore(path)

	if err := store.Set("openai", "sk"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestStore_RejectsEmptyValues(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	if err := store.Set("", "key"); err == nil {
		t.Error("Expected error for empty provider")
	}
	if err := store.Set("openai", "  "); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestCredential_Masked(t *testing.T) {
	c := Credential{APIKey: "sk-abcdef1234"}
	if got := c.Masked(); got != "********1234" {
		t.Errorf("Masked() = %q", got)
	}
	for _, key := range []string{"abc", "abcde", "abcdefgh", "sk-abcdef12"} {
		short := Credential{APIKey: key}
		if got := short.Masked(); got != "********" {
			t.Errorf("Masked(%q) = %q, want fully hidden", key, got)
		}
	}
}
