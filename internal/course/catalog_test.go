package course

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	xerrors "Sonic-University/internal/errors"
)

func TestLoadCatalogBuiltin(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load builtin catalog: %v", err)
	}
	if catalog.Len() == 0 {
		t.Fatal("builtin catalog must not be empty")
	}

	// 目录按 ID 升序。
	courses := catalog.Courses()
	for i := 1; i < len(courses); i++ {
		if courses[i-1].ID >= courses[i].ID {
			t.Fatalf("catalog not sorted at index %d", i)
		}
	}

	if _, ok := catalog.Lookup(1); !ok {
		t.Fatal("expected course 1 in builtin catalog")
	}
	if _, ok := catalog.Lookup(9999); ok {
		t.Fatal("unexpected course 9999")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	content := `[
  {"id": 7, "title": "Advanced Solidity", "difficulty": "Advanced"},
  {"id": 2, "title": "Wallet UX", "difficulty": "Beginner"}
]`
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("unexpected catalog size: %d", catalog.Len())
	}
	if catalog.Courses()[0].ID != 2 {
		t.Fatalf("expected catalog sorted by id, got %d first", catalog.Courses()[0].ID)
	}
}

func TestLoadCatalogRejectsBadFiles(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty list", `[]`},
		{"zero id", `[{"id": 0, "title": "x"}]`},
		{"duplicate id", `[{"id": 1, "title": "a"}, {"id": 1, "title": "b"}]`},
		{"not json", `not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "catalog.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write catalog file: %v", err)
			}

			_, err := LoadCatalog(path)
			if err == nil {
				t.Fatal("expected error")
			}
			var coded *xerrors.Error
			if !errors.As(err, &coded) || coded.Code() != xerrors.CodeConfigFailure {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
