package updateagent

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions compares two script versions, returning -1, 0 or +1.
// Canonical semantic versions are compared as such: pre-release aware
// ("2.0.0-beta" < "2.0.0"), with a missing patch or minor segment treated as
// zero ("1.0" == "1.0.0") and a leading "v" optional. Versions outside the
// semver grammar, four-segment ones in particular ("1.2.3.4"), fall back to
// a numeric segment-wise comparison that stays pre-release aware. Versions
// that fit neither form compare lowest; two such versions compare equal.
// The comparison is total and never fails.
func CompareVersions(a, b string) int {
	ca, cb := canonicalVersion(a), canonicalVersion(b)
	if semver.IsValid(ca) && semver.IsValid(cb) {
		return semver.Compare(ca, cb)
	}
	na, okA := parseNumericVersion(ca)
	nb, okB := parseNumericVersion(cb)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	return na.compare(nb)
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// numericVersion is the dotted-numeric fallback form, with an optional
// pre-release suffix after the first "-".
type numericVersion struct {
	segments []int64
	pre      string
	hasPre   bool
}

func parseNumericVersion(v string) (numericVersion, bool) {
	v = strings.TrimPrefix(v, "v")
	if v == "" {
		return numericVersion{}, false
	}
	var parsed numericVersion
	if i := strings.IndexByte(v, '-'); i >= 0 {
		parsed.pre, parsed.hasPre = v[i+1:], true
		v = v[:i]
	}
	for _, seg := range strings.Split(v, ".") {
		n, err := strconv.ParseUint(seg, 10, 63)
		if err != nil {
			return numericVersion{}, false
		}
		parsed.segments = append(parsed.segments, int64(n))
	}
	return parsed, true
}

// compare orders by numeric segments left to right with missing segments as
// zero; equal releases put a pre-release before its release.
func (a numericVersion) compare(b numericVersion) int {
	for i := 0; i < len(a.segments) || i < len(b.segments); i++ {
		var sa, sb int64
		if i < len(a.segments) {
			sa = a.segments[i]
		}
		if i < len(b.segments) {
			sb = b.segments[i]
		}
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
	}
	switch {
	case a.hasPre && !b.hasPre:
		return -1
	case !a.hasPre && b.hasPre:
		return 1
	case a.pre < b.pre:
		return -1
	case a.pre > b.pre:
		return 1
	}
	return 0
}
