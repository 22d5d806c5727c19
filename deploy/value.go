package deploy

// Value is one alternative of the configuration union: a map, a list, a
// reference to another node, an attribute projection of another node, or a
// plain scalar wrapped by V. The set of alternatives is closed; completion
// dispatches over it with a type switch and anything else is a bug in this
// package, not caller input.
type Value interface {
	isValue()
}

// Map is an object-shaped config value. Keys survive completion unchanged;
// only the values are resolved.
type Map map[string]Value

func (Map) isValue() {}

// List is a sequence-shaped config value.
type List []Value

func (List) isValue() {}

// Ref embeds another node's realized resource into the surrounding config.
// Completion replaces it with the realized object itself, completing the
// node first if no run has done so yet.
type Ref struct {
	Node Partial
}

func (Ref) isValue() {}

// Attr projects a single attribute of another node's realized resource,
// for example the ARN of a role a function config needs. The projection is
// evaluated only after every node of the run has been completed, so the
// owner is fully constructed by the time the value is read.
type Attr struct {
	Node *Node
	Name string
}

func (Attr) isValue() {}

// literal carries any scalar the engine passes through untouched: strings,
// numbers, byte slices, nil.
type literal struct {
	v any
}

func (literal) isValue() {}

// V wraps a plain Go value as a config scalar. Values that already are
// config values pass through unchanged.
func V(v any) Value {
	if cv, ok := v.(Value); ok {
		return cv
	}
	return literal{v: v}
}

// deferredAttr stands in for an attribute projection between the two
// completion phases. Resolved configs never leak one to a kind; the
// completer patches them all before returning.
type deferredAttr struct {
	owner Resource
	kind  string
	name  string
}
