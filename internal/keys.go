package internal

import (
	"strconv"
	"strings"
)

// DefaultNamespace prefixes every durable key
const DefaultNamespace = "git-engine:terminal-responses"

// KeyScheme builds durable tier keys of the form
// <namespace>:<sessionIdOrGlobal>[:<version>]
type KeyScheme struct {
	Namespace string
}

// NewKeyScheme returns a scheme for namespace, falling back to the default
func NewKeyScheme(namespace string) KeyScheme {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	return KeyScheme{Namespace: namespace}
}

// Base is the unversioned key. Sessions without a version use it, and it
// is the legacy location read for pre-versioning data.
func (k KeyScheme) Base(id SessionIdentity) string {
	return k.Namespace + ":" + keyEscaper.Replace(id.StorageID())
}

// keyEscaper keeps ids containing ':' from aliasing versioned keys
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Versioned returns the key for a pinned version
func (k KeyScheme) Versioned(id SessionIdentity, version int64) string {
	return k.Base(id) + ":" + strconv.FormatInt(version, 10)
}

// Ledger returns the key ledgers are written under for id
func (k KeyScheme) Ledger(id SessionIdentity) string {
	if id.Version != nil {
		return k.Versioned(id, *id.Version)
	}
	return k.Base(id)
}

// VersionPrefix matches every versioned key of id
func (k KeyScheme) VersionPrefix(id SessionIdentity) string {
	return k.Base(id) + ":"
}

var keyUnescaper = strings.NewReplacer("%3A", ":", "%25", "%")

// Parse splits a durable key into its storage id and optional version.
// Keys outside the namespace are rejected.
func (k KeyScheme) Parse(key string) (storageID string, version *int64, ok bool) {
	rest, found := strings.CutPrefix(key, k.Namespace+":")
	if !found || rest == "" {
		return "", nil, false
	}
	escaped, suffix, versioned := strings.Cut(rest, ":")
	if versioned {
		v, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			return "", nil, false
		}
		version = &v
	}
	return keyUnescaper.Replace(escaped), version, true
}
