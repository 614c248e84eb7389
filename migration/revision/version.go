package revision

import (
	"strings"

	"golang.org/x/mod/semver"
)

// ValidVersion reports whether v is a MAJOR.MINOR.PATCH version string.
func ValidVersion(v string) bool {
	if strings.HasPrefix(v, "v") {
		return false
	}
	sv := "v" + v
	return semver.IsValid(sv) && semver.Canonical(sv) == sv && semver.Prerelease(sv) == "" && semver.Build(sv) == ""
}

// CompareVersions compares two semantic versions and returns -1, 0 or +1.
// An empty version sorts before any other version.
func CompareVersions(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	return semver.Compare("v"+a, "v"+b)
}
