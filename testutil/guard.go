// Package testutil provides test helpers that keep package boundaries in
// place: the statistics kernel stays free of storage code and backends only
// reach the packages they are built on.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Module is the import path prefix of this repository.
const Module = "mitostat"

// AssertModuleImports parses the non-test Go files in dir and fails when a
// file imports a package of this module that is not listed in allowed.
func AssertModuleImports(t testing.TB, dir string, allowed ...string) {
	t.Helper()
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	viols, err := directImportViolations(dir, func(path string) bool {
		return IsModuleImport(path) && !ok[path]
	})
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIf(t, "imports outside the allowed set", viols)
}

// AssertNoTransitiveDependency runs `go list -deps` for pattern and fails when
// any dependency matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Skipf("go list unavailable: %v\n%s", err, out)
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	failIf(t, reason, viols)
}

// IsModuleImport reports whether path belongs to this module.
func IsModuleImport(path string) bool {
	return path == Module || strings.HasPrefix(path, Module+"/")
}

// IsInfraImport reports whether path is a storage backend package.
func IsInfraImport(path string) bool {
	return strings.HasPrefix(path, Module+"/internal/infra/")
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			if path := strings.Trim(imp.Path.Value, `"`); forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIf(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden dependency (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
