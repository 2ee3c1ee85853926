package environment

import (
	"regexp"
	"sort"
)

// namePattern matches environment names puppet can serve as directory
// environments.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidName reports whether name is usable as an environment name: it must
// match the puppet naming rules and must not match the exclusion pattern.
func ValidName(name string, blacklist *regexp.Regexp) bool {
	if !namePattern.MatchString(name) {
		return false
	}
	if blacklist != nil && blacklist.MatchString(name) {
		return false
	}
	return true
}

// Sets is the four-way reconciliation classification of environments.
//
//	available: branch exists upstream and name is not excluded
//	installed: a live pointer exists on disk
//	missing:   available and not installed
//	obsolete:  installed and not available
type Sets struct {
	Available []string
	Installed []string
	Missing   []string
	Obsolete  []string
}

// Reconcile computes the reconciliation sets from the current remote branch
// names and the live-pointer names present under the environment root. It
// is a pure function: no state is retained between calls.
func Reconcile(branches, installed []string, blacklist *regexp.Regexp) Sets {
	available := make(map[string]bool)
	for _, name := range branches {
		if ValidName(name, blacklist) {
			available[name] = true
		}
	}

	present := make(map[string]bool)
	for _, name := range installed {
		if ValidName(name, blacklist) {
			present[name] = true
		}
	}

	var sets Sets
	for name := range available {
		sets.Available = append(sets.Available, name)
		if !present[name] {
			sets.Missing = append(sets.Missing, name)
		}
	}
	for name := range present {
		sets.Installed = append(sets.Installed, name)
		if !available[name] {
			sets.Obsolete = append(sets.Obsolete, name)
		}
	}

	sort.Strings(sets.Available)
	sort.Strings(sets.Installed)
	sort.Strings(sets.Missing)
	sort.Strings(sets.Obsolete)

	return sets
}
