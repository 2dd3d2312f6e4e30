package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "auth.md"), []byte("# Auth\nTokens are rotated every 24 hours."), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "billing.txt"), []byte("Invoices are generated monthly in USD."), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte{0x00, 0x01}, 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestStore_Search_FindsMatchingDocument(t *testing.T) {
	dir := writeTestDocs(t)
	store := NewStore(dir)

	results, err := store.Search("tokens rotated", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Path != "auth.md" {
		t.Fatalf("got %+v, want a single hit on auth.md", results)
	}
}

func TestStore_Search_IgnoresNonTextFiles(t *testing.T) {
	dir := writeTestDocs(t)
	store := NewStore(dir)

	results, err := store.Search("invoices", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Path != "billing.txt" {
		t.Fatalf("got %+v, want a single hit on billing.txt", results)
	}
}

func TestStore_Search_RequiresQuery(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Search("   ", 5); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestStore_Search_NoMatches(t *testing.T) {
	dir := writeTestDocs(t)
	store := NewStore(dir)

	results, err := store.Search("nonexistentterm", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}

func TestStore_Search_MissingRoot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	results, err := store.Search("anything", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0 for missing root", len(results))
	}
}
