package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// layer restricts which packages may import the packages under guarded.
type layer struct {
	guarded string
	allowed []string
}

var layers = []layer{
	{guarded: "mitostat/internal/infra/blob", allowed: []string{"mitostat/internal/blob"}},
	{guarded: "mitostat/internal/infra/persistence", allowed: []string{"mitostat/internal/core"}},
	{guarded: "mitostat/internal/report", allowed: []string{"mitostat/cmd"}},
}

// within also matches the external test package and the generated test main
// of prefix.
func within(path, prefix string) bool {
	return path == prefix ||
		strings.HasPrefix(path, prefix+"/") ||
		path == prefix+"_test" ||
		path == prefix+".test"
}

func TestWithin(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"mitostat/internal/report", "mitostat/internal/report", true},
		{"mitostat/internal/report_test", "mitostat/internal/report", true},
		{"mitostat/internal/report.test", "mitostat/internal/report", true},
		{"mitostat/internal/infra/blob/s3", "mitostat/internal/infra/blob", true},
		{"mitostat/internal/reporting", "mitostat/internal/report", false},
		{"mitostat/internal/core.test", "mitostat/internal/report", false},
	}
	for _, tc := range cases {
		if got := within(tc.path, tc.prefix); got != tc.want {
			t.Fatalf("within(%q, %q) = %v, want %v", tc.path, tc.prefix, got, tc.want)
		}
	}
}

// TestLayering checks that report publishing and the CLI reach the storage
// backends through blob.Store and core only.
func TestLayering(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "mitostat/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var violations []string
	for _, pkg := range pkgs {
		for _, l := range layers {
			if within(pkg.PkgPath, l.guarded) || allowedBy(pkg.PkgPath, l.allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if within(importPath, l.guarded) {
					violations = append(violations, pkg.PkgPath+": "+importPath)
				}
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden import: %s", v)
	}
}

func allowedBy(path string, allowed []string) bool {
	for _, a := range allowed {
		if within(path, a) {
			return true
		}
	}
	return false
}
