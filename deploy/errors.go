package deploy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DuplicateIdentityError is returned when two graph nodes claim the same
// ztid. Identity is caller-assigned, so this is always a declaration bug.
type DuplicateIdentityError struct {
	ZTID uuid.UUID
	Name string
}

func (e *DuplicateIdentityError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("duplicate node identity %s (%s)", e.ZTID, e.Name)
	}
	return fmt.Sprintf("duplicate node identity %s", e.ZTID)
}

// CycleError is returned when completion re-enters a node that is still
// being completed. Path holds the chain of identities from the first
// occurrence of the offending node back to itself.
type CycleError struct {
	Path []uuid.UUID
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Path))
	for _, id := range e.Path {
		parts = append(parts, id.String())
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, " -> "))
}

// UnknownKindError is returned when a recorded type tag has no registered
// kind, which makes the record impossible to rehydrate.
type UnknownKindError struct {
	Tag string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown resource kind %q", e.Tag)
}

// AttributeError is returned when an attribute projection names something
// the owning resource cannot provide.
type AttributeError struct {
	Kind string
	Name string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("resource kind %q has no attribute %q", e.Kind, e.Name)
}
