// Package testutil provides helpers for enforcing import boundaries in
// package tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports scans all non-test .go files in dir (typically "."
// from within the package under test) and fails if any import path satisfies
// the forbidden predicate. Build tags are not followed.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	violations, err := scanImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan imports: %v", err)
	}
	if len(violations) > 0 {
		t.Fatalf("forbidden imports (%s):\n  %s", reason, strings.Join(violations, "\n  "))
	}
}

// InternalImportForbidden matches any import path under internal/. Exported
// pkg/ packages must stay free of internal dependencies so they remain usable
// on their own.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// ThirdPartyImportForbidden matches imports outside the standard library and
// this module, excepting paths for which allow returns true.
func ThirdPartyImportForbidden(allow func(path string) bool) func(string) bool {
	return func(path string) bool {
		if !strings.Contains(path, ".") {
			return false // standard library
		}
		if allow != nil && allow(path) {
			return false
		}
		return true
	}
}

func scanImports(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var violations []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				violations = append(violations, name+" imports "+path)
			}
		}
	}
	return violations, nil
}
