// Package keyspace maps logical primitive names to fully-qualified store keys.
//
// Every primitive kind owns a two-segment prefix (store type, role), so keys
// of different kinds can never collide inside one Redis database.
package keyspace

import (
	"strings"

	coorderrors "github.com/mirkobrombin/go-coord/v1/errors"
)

// Kind identifies the primitive a key belongs to.
type Kind struct {
	segments [2]string
}

var (
	Value        = Kind{[2]string{"String", "Value"}}
	Counter      = Kind{[2]string{"String", "Counter"}}
	FloatCounter = Kind{[2]string{"String", "FloatCounter"}}
	Lock         = Kind{[2]string{"String", "Lock"}}
	RateLimiter  = Kind{[2]string{"String", "RateLimiter"}}
	Firewall     = Kind{[2]string{"String", "Firewall"}}
	Hash         = Kind{[2]string{"Hash", "Value"}}
)

// Kinds lists every kind known to the package.
func Kinds() []Kind {
	return []Kind{Value, Counter, FloatCounter, Lock, RateLimiter, Firewall, Hash}
}

// Prefix returns the kind prefix including the trailing separator.
func (k Kind) Prefix(sep string) string {
	return k.segments[0] + sep + k.segments[1] + sep
}

func (k Kind) String() string { return k.segments[0] + ":" + k.segments[1] }

// DefaultSeparator is used when a Namespace is built with an empty separator.
const DefaultSeparator = ":"

// Namespace builds fully-qualified keys with a fixed separator.
type Namespace struct {
	sep string
}

// New returns a Namespace using sep, or DefaultSeparator when sep is empty.
func New(sep string) Namespace {
	if sep == "" {
		sep = DefaultSeparator
	}
	return Namespace{sep: sep}
}

// Separator returns the configured separator.
func (n Namespace) Separator() string {
	if n.sep == "" {
		return DefaultSeparator
	}
	return n.sep
}

// RealKey returns kind prefix + separator + key.
func (n Namespace) RealKey(kind Kind, key string) (string, error) {
	if key == "" {
		return "", coorderrors.ErrEmptyKey
	}
	var b strings.Builder
	prefix := kind.Prefix(n.Separator())
	b.Grow(len(prefix) + len(key))
	b.WriteString(prefix)
	b.WriteString(key)
	return b.String(), nil
}
