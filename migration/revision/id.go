package revision

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxIDLength bounds the length of a revision identity.
	MaxIDLength = 32

	rootMarker = "root"
	separator  = "_"
)

// namespace is the UUIDv5 namespace used to shorten long identities. It must never change.
var namespace = uuid.MustParse("840b31d9-05cd-5161-b2c8-00d32b280d0f")

// ID returns the identity of the revision that brings tree to version.
func ID(tree, version string) string {
	return derive(tree, version)
}

// RootID returns the identity of the root revision of tree.
func RootID(tree string) string {
	return derive(tree)
}

func derive(parts ...string) string {
	var id string
	if len(parts) == 1 {
		id = parts[0] + separator + rootMarker
	} else {
		id = strings.Join(parts, separator)
	}
	if len(id) <= MaxIDLength {
		return id
	}
	hex := strings.ReplaceAll(uuid.NewSHA1(namespace, []byte(id)).String(), "-", "")
	return hex[len(hex)-12:]
}
