package apply

import "fmt"

// Params is the decoded `parameters` object of one plan entry; each
// action family's constructor pulls the keys it needs and reports an
// error for anything missing.
type Params map[string]any

// Constructor builds an Action from a plan entry's id, idempotency key and
// parameters.
type Constructor func(id, idempotencyKey string, params Params) (Action, error)

// registry is the closed set of known action types, populated by each
// action family's init(). A plan naming a type outside this set is a
// configuration error caught before any network call — a registry of
// constructors rather than reflection-keyed dispatch by type name.
var registry = map[string]Constructor{}

// Register adds a constructor under actionType. Called from init() in
// each action family file; a duplicate registration is a programming
// error and panics immediately rather than silently shadowing.
func Register(actionType string, ctor Constructor) {
	if _, exists := registry[actionType]; exists {
		panic("apply: duplicate action type registered: " + actionType)
	}
	registry[actionType] = ctor
}

// Build constructs the Action named by a plan entry's type.
func Build(actionType, id, idempotencyKey string, params Params) (Action, error) {
	ctor, ok := registry[actionType]
	if !ok {
		return nil, fmt.Errorf("apply: unknown action type %q", actionType)
	}
	return ctor(id, idempotencyKey, params)
}

// KnownTypes lists every registered action type, for plan validation and
// diagnostics.
func KnownTypes() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

func paramString(p Params, key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

func paramStringDefault(p Params, key, def string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func paramBoolDefault(p Params, key string, def bool) bool {
	if v, ok := p[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func paramStringSlice(p Params, key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
