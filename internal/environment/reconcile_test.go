package environment

import (
	"reflect"
	"regexp"
	"testing"
)

func TestValidName(t *testing.T) {
	blacklist := regexp.MustCompile(`^live_.*$`)

	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{"simple name", "production", true},
		{"underscores and digits", "qa_2", true},
		{"blacklisted", "live_production", false},
		{"hyphen", "feature-x", false},
		{"dot", "production.old", false},
		{"slash", "feature/x", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidName(tc.input, blacklist); got != tc.expected {
				t.Errorf("ValidName(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	testCases := []struct {
		name      string
		branches  []string
		installed []string
		blacklist string
		expected  Sets
	}{
		{
			name:      "empty inputs",
			branches:  nil,
			installed: nil,
			blacklist: `^$`,
			expected:  Sets{},
		},
		{
			name:      "nothing installed",
			branches:  []string{"production", "staging"},
			installed: nil,
			blacklist: `^$`,
			expected: Sets{
				Available: []string{"production", "staging"},
				Missing:   []string{"production", "staging"},
			},
		},
		{
			name:      "fully converged",
			branches:  []string{"production", "staging"},
			installed: []string{"production", "staging"},
			blacklist: `^$`,
			expected: Sets{
				Available: []string{"production", "staging"},
				Installed: []string{"production", "staging"},
			},
		},
		{
			name:      "missing and obsolete",
			branches:  []string{"production", "staging"},
			installed: []string{"production", "old_feature"},
			blacklist: `^$`,
			expected: Sets{
				Available: []string{"production", "staging"},
				Installed: []string{"old_feature", "production"},
				Missing:   []string{"staging"},
				Obsolete:  []string{"old_feature"},
			},
		},
		{
			name:      "exclusion pattern filters available",
			branches:  []string{"production", "staging", "qa_old"},
			installed: nil,
			blacklist: `^qa_`,
			expected: Sets{
				Available: []string{"production", "staging"},
				Missing:   []string{"production", "staging"},
			},
		},
		{
			name:      "invalid branch names are never available",
			branches:  []string{"production", "feature/x", "release-1.0"},
			installed: nil,
			blacklist: `^$`,
			expected: Sets{
				Available: []string{"production"},
				Missing:   []string{"production"},
			},
		},
		{
			name:      "blacklisted installed entries are ignored",
			branches:  []string{"production"},
			installed: []string{"production", "live_production"},
			blacklist: `^live_.*$`,
			expected: Sets{
				Available: []string{"production"},
				Installed: []string{"production"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pattern := regexp.MustCompile(tc.blacklist)
			got := Reconcile(tc.branches, tc.installed, pattern)

			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Reconcile() = %+v, expected %+v", got, tc.expected)
			}
		})
	}
}

func TestReconcile_SetsAreConsistent(t *testing.T) {
	pattern := regexp.MustCompile(`^qa_`)
	branches := []string{"production", "staging", "qa_old", "qa_new"}
	installed := []string{"staging", "retired", "qa_old"}

	sets := Reconcile(branches, installed, pattern)

	inSet := func(set []string, name string) bool {
		for _, s := range set {
			if s == name {
				return true
			}
		}
		return false
	}

	// missing = available - installed, obsolete = installed - available
	for _, name := range sets.Missing {
		if !inSet(sets.Available, name) {
			t.Errorf("missing environment %q is not available", name)
		}
		if inSet(sets.Installed, name) {
			t.Errorf("missing environment %q is installed", name)
		}
	}
	for _, name := range sets.Obsolete {
		if !inSet(sets.Installed, name) {
			t.Errorf("obsolete environment %q is not installed", name)
		}
		if inSet(sets.Available, name) {
			t.Errorf("obsolete environment %q is available", name)
		}
	}

	if inSet(sets.Available, "qa_old") || inSet(sets.Available, "qa_new") {
		t.Error("excluded environments must never be available")
	}
}
