package core

import (
	"sort"
	"strings"
)

// diffResult reports how one string set changed relative to another.
type diffResult struct {
	New     []string
	Removed []string
	InBoth  []string
}

// diffStrings compares the old and new membership of a list and returns the
// added, removed and unchanged entries, each sorted.
func diffStrings(old, updated []string) diffResult {
	oldSet := make(map[string]bool, len(old))
	for _, s := range old {
		oldSet[s] = true
	}
	newSet := make(map[string]bool, len(updated))
	for _, s := range updated {
		newSet[s] = true
	}

	var d diffResult
	for s := range newSet {
		if oldSet[s] {
			d.InBoth = append(d.InBoth, s)
		} else {
			d.New = append(d.New, s)
		}
	}
	for s := range oldSet {
		if !newSet[s] {
			d.Removed = append(d.Removed, s)
		}
	}
	sort.Strings(d.New)
	sort.Strings(d.Removed)
	sort.Strings(d.InBoth)
	return d
}

// usernamesFromIdentities normalizes a mixed list of usernames and email
// addresses to usernames: anything before an '@' is kept, duplicates are
// dropped, and the result is sorted.
func usernamesFromIdentities(identities []string) []string {
	seen := make(map[string]bool, len(identities))
	var out []string
	for _, id := range identities {
		name := id
		if at := strings.IndexByte(id, '@'); at >= 0 {
			name = id[:at]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ImportCounter tallies the outcome of a bulk device import.
type ImportCounter struct {
	Success int
	Fail    int
	Ignored int
	Headers int
}

func (c *ImportCounter) Add(other ImportCounter) {
	c.Success += other.Success
	c.Fail += other.Fail
	c.Ignored += other.Ignored
	c.Headers += other.Headers
}
