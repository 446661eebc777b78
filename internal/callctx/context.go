package callctx

import "encoding/json"

// Tree owns every CallContext produced by one parse. Contexts refer to
// their parents by index.
type Tree struct {
	nodes []CallContext
}

// Len returns the number of contexts in the chain.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Innermost returns the context that directly contains the cursor.
func (t *Tree) Innermost() *CallContext {
	if t == nil || len(t.nodes) == 0 {
		return nil
	}
	return &t.nodes[0]
}

// CallContext describes one open call around the cursor. It is read-only.
type CallContext struct {
	tree   *Tree
	parent int

	kind       CallKind
	class      string
	resolution Resolution
	function   string
	variable   string
	line       int
	args       ArgumentList
}

// Class returns the class name as written at the call site, or the class
// inferred for the receiver. It is empty for plain function calls.
func (c *CallContext) Class() string { return c.class }

// FQN returns the fully qualified class name. It is empty when Class is.
func (c *CallContext) FQN() string { return c.resolution.FQN }

// FQNResolved reports whether FQN came from a use statement, a namespace or
// a fully qualified reference.
func (c *CallContext) FQNResolved() bool { return c.resolution.Resolved }

// DisplayName returns the unaliased short class name.
func (c *CallContext) DisplayName() string { return c.resolution.DisplayName }

// Function returns the method or function name.
func (c *CallContext) Function() string { return c.function }

func (c *CallContext) Kind() CallKind { return c.kind }

// Variable returns the receiver variable of an instance call, if any.
func (c *CallContext) Variable() string { return c.variable }

func (c *CallContext) Line() int { return c.line }

func (c *CallContext) Arguments() ArgumentList { return c.args }

// Parameters returns the text of the completed arguments.
func (c *CallContext) Parameters() []string {
	out := make([]string, 0, len(c.args.Arguments))
	for _, a := range c.args.Arguments {
		out = append(out, a.Text)
	}
	return out
}

// ParamIndex is the zero-based index of the argument under the cursor.
func (c *CallContext) ParamIndex() int { return c.args.AutocompletingIndex }

func (c *CallContext) IsParamIndex(n int) bool { return c.ParamIndex() == n }

// CurrentParam returns the argument under the cursor, nil if nothing has
// been typed for it yet.
func (c *CallContext) CurrentParam() *ArgumentValue { return c.args.Current }

func (c *CallContext) CurrentParamIsArray() bool {
	return c.args.Current != nil && c.args.Current.Kind == ValueArray
}

// CurrentArrayEntry returns the array entry holding the cursor.
func (c *CallContext) CurrentArrayEntry() *ArrayEntry {
	if !c.CurrentParamIsArray() {
		return nil
	}
	_, entry := cursorArray(c.args.Current)
	return entry
}

// FillingInArrayKey reports whether the cursor is on an array key.
func (c *CallContext) FillingInArrayKey() bool {
	e := c.CurrentArrayEntry()
	return e != nil && e.AutocompletingKey
}

// FillingInArrayValue reports whether the cursor is on an array value.
func (c *CallContext) FillingInArrayValue() bool {
	e := c.CurrentArrayEntry()
	return e != nil && e.AutocompletingValue
}

// CurrentParamArrayKeys returns the keys already written in the array the
// cursor is in, excluding the entry being edited.
func (c *CallContext) CurrentParamArrayKeys() []string {
	if !c.CurrentParamIsArray() {
		return nil
	}
	arr, entry := cursorArray(c.args.Current)
	var keys []string
	for i := range arr.Entries {
		e := &arr.Entries[i]
		if e == entry || e.Key == nil {
			continue
		}
		keys = append(keys, e.Key.Text)
	}
	return keys
}

// cursorArray descends to the innermost array that holds the flagged entry.
func cursorArray(v *ArgumentValue) (*ArgumentValue, *ArrayEntry) {
	for v != nil && v.Kind == ValueArray {
		if len(v.Entries) == 0 {
			return v, nil
		}
		last := &v.Entries[len(v.Entries)-1]
		if last.AutocompletingKey || last.AutocompletingValue {
			return v, last
		}
		if !holdsCursor(&last.Value) {
			return v, nil
		}
		v = &last.Value
	}
	return v, nil
}

func holdsCursor(v *ArgumentValue) bool {
	if v.Kind != ValueArray || len(v.Entries) == 0 {
		return false
	}
	last := &v.Entries[len(v.Entries)-1]
	return last.AutocompletingKey || last.AutocompletingValue || holdsCursor(&last.Value)
}

// Parent returns the next enclosing call, or nil.
func (c *CallContext) Parent() *CallContext {
	if c == nil || c.tree == nil || c.parent < 0 {
		return nil
	}
	return &c.tree.nodes[c.parent]
}

// WalkParents calls fn for each enclosing context, innermost first, until
// fn returns true. It returns the context fn stopped at, or nil.
func (c *CallContext) WalkParents(fn func(*CallContext) bool) *CallContext {
	for p := c.Parent(); p != nil; p = p.Parent() {
		if fn(p) {
			return p
		}
	}
	return nil
}

type contextJSON struct {
	Kind        CallKind     `json:"kind"`
	Class       string       `json:"class,omitempty"`
	FQN         string       `json:"fqn,omitempty"`
	FQNResolved bool         `json:"fqnResolved,omitempty"`
	Function    string       `json:"function"`
	Variable    string       `json:"variable,omitempty"`
	Line        int          `json:"line"`
	ParamIndex  int          `json:"paramIndex"`
	Parameters  []string     `json:"parameters"`
	Arguments   ArgumentList `json:"arguments"`
	Parent      *CallContext `json:"parent,omitempty"`
}

func (c *CallContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		Kind:        c.kind,
		Class:       c.class,
		FQN:         c.resolution.FQN,
		FQNResolved: c.resolution.Resolved,
		Function:    c.function,
		Variable:    c.variable,
		Line:        c.line,
		ParamIndex:  c.ParamIndex(),
		Parameters:  c.Parameters(),
		Arguments:   c.args,
		Parent:      c.Parent(),
	})
}
