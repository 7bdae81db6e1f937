package opstate

import (
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	val, err := s.Get(NamespaceSettings, "api_key")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q, want empty string for missing key", val)
	}
}

func TestSetGetUpsert(t *testing.T) {
	s := testStore(t)

	if err := s.Set(NamespaceDiscord, "cursor", "1200"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Set(NamespaceDiscord, "cursor", "1300"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	val, err := s.Get(NamespaceDiscord, "cursor")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "1300" {
		t.Errorf("Get() = %q, want %q after upsert", val, "1300")
	}
}

func TestGetInt(t *testing.T) {
	s := testStore(t)

	n, err := s.GetInt(NamespaceRules, "interval", 7)
	if err != nil || n != 7 {
		t.Fatalf("GetInt(missing) = %d, %v; want 7, nil", n, err)
	}
	if err := s.SetInt(NamespaceRules, "interval", 20); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.GetInt(NamespaceRules, "interval", 7); n != 20 {
		t.Errorf("GetInt() = %d, want 20", n)
	}
	s.Set(NamespaceRules, "interval", "twenty")
	if n, _ := s.GetInt(NamespaceRules, "interval", 7); n != 7 {
		t.Errorf("GetInt(non-numeric) = %d, want default 7", n)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)

	s.Set(NamespaceSettings, "model", "x")
	if err := s.Delete(NamespaceSettings, "model"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(NamespaceSettings, "model"); err != nil {
		t.Fatalf("Delete(missing) error: %v", err)
	}
	if v, _ := s.Get(NamespaceSettings, "model"); v != "" {
		t.Errorf("Get() after delete = %q", v)
	}
}

func TestReplaceNamespace(t *testing.T) {
	s := testStore(t)

	s.Set(NamespaceRules, "rule.0", "old first")
	s.Set(NamespaceRules, "rule.1", "old second")
	s.Set(NamespaceSettings, "model", "keep")

	if err := s.ReplaceNamespace(NamespaceRules, map[string]string{"rule.0": "new"}); err != nil {
		t.Fatalf("ReplaceNamespace() error: %v", err)
	}

	got, err := s.List(NamespaceRules)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["rule.0"] != "new" {
		t.Errorf("List() = %v, want only rule.0=new", got)
	}
	if v, _ := s.Get(NamespaceSettings, "model"); v != "keep" {
		t.Errorf("other namespace touched: model = %q", v)
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s1.Set(NamespaceDiscord, "cursor", "99")
	s1.Close()

	s2, err := NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if v, _ := s2.Get(NamespaceDiscord, "cursor"); v != "99" {
		t.Errorf("cursor after reopen = %q, want 99", v)
	}
}

func TestListEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.List("nothing")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty non-nil map", got)
	}
}
