package core

import "testing"

func TestCleanKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
		ok   bool
	}{
		{"reports/abc.xlsx", "reports/abc.xlsx", true},
		{"reports//abc.xlsx", "reports/abc.xlsx", true},
		{"./a", "a", true},
		{"", "", false},
		{"  ", "", false},
		{"/etc/passwd", "", false},
		{"../up", "", false},
		{"a/../../up", "", false},
	}
	for _, tc := range cases {
		got, err := CleanKey(tc.key)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", tc.key, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("CleanKey(%q) expected error", tc.key)
		}
	}
}

func TestCloneMetadata(t *testing.T) {
	if CloneMetadata(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	in := map[string]string{"region": "IF"}
	out := CloneMetadata(in)
	out["region"] = "CU"
	if in["region"] != "IF" {
		t.Fatalf("clone aliased input")
	}
}
