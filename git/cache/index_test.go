package cache

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

func TestLoadOrCreateIndex(t *testing.T) {
	t.Run("creates new index if file doesn't exist", func(t *testing.T) {
		index, err := loadOrCreateIndex(memfs.New(), "index.json")
		if err != nil {
			t.Fatalf("loadOrCreateIndex() error = %v", err)
		}
		if index.Version != indexVersion {
			t.Errorf("index.Version = %v, want %v", index.Version, indexVersion)
		}
		if len(index.Entries) != 0 {
			t.Errorf("len(index.Entries) = %v, want 0", len(index.Entries))
		}
	})

	t.Run("round trips through disk", func(t *testing.T) {
		fs := memfs.New()
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		original := newIndex()
		original.set(Entry{
			Key:        "github.com/my/repo",
			Repository: "https://github.com/my/repo",
			Path:       "/cache/repos/github.com_my_repo-abc",
			CreatedAt:  now,
			LastUsed:   now,
			Held:       true,
		})
		if err := original.save(fs, "index.json"); err != nil {
			t.Fatalf("save() error = %v", err)
		}
		if _, err := fs.Stat("index.json.tmp"); err == nil {
			t.Error("temporary file left behind")
		}

		loaded, err := loadOrCreateIndex(fs, "index.json")
		if err != nil {
			t.Fatalf("loadOrCreateIndex() error = %v", err)
		}
		entry, ok := loaded.get("github.com/my/repo")
		if !ok {
			t.Fatal("entry missing after reload")
		}
		if !entry.LastUsed.Equal(now) {
			t.Errorf("LastUsed = %v, want %v", entry.LastUsed, now)
		}
		if entry.Held {
			t.Error("Held must not be persisted")
		}
	})

	t.Run("rejects other versions", func(t *testing.T) {
		fs := memfs.New()
		if err := util.WriteFile(fs, "index.json", []byte(`{"version":"0","entries":{}}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := loadOrCreateIndex(fs, "index.json"); err == nil {
			t.Error("expected version error")
		}
	})

	t.Run("initializes missing map", func(t *testing.T) {
		fs := memfs.New()
		if err := util.WriteFile(fs, "index.json", []byte(`{"version":"1"}`), 0o644); err != nil {
			t.Fatal(err)
		}
		index, err := loadOrCreateIndex(fs, "index.json")
		if err != nil {
			t.Fatalf("loadOrCreateIndex() error = %v", err)
		}
		if index.Entries == nil {
			t.Error("Entries is nil")
		}
	})
}

func TestIndexList(t *testing.T) {
	index := newIndex()
	for _, key := range []string{"c", "a", "b"} {
		index.set(Entry{Key: key})
	}

	got := index.list()
	if len(got) != 3 || got[0].Key != "a" || got[1].Key != "b" || got[2].Key != "c" {
		t.Errorf("list() = %v, want ordered a, b, c", got)
	}

	index.delete("b")
	if _, ok := index.get("b"); ok {
		t.Error("get() after delete() found entry")
	}
}
