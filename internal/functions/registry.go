package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Account identifies who a function call acts on behalf of. Zero means unset.
type Account struct {
	TicketID    int64
	CompanyID   int64
	ContactID   int64
	UserID      int64
	QueueID     int64
	PhoneNumber string
	ContactName string
}

// Function is a server-side capability the assistant can invoke. Soft
// failures are returned as text for the assistant; errors abort the batch.
type Function interface {
	Name() string
	// Schema is the JSON schema of the arguments object. Empty skips validation.
	Schema() string
	Call(ctx context.Context, args json.RawMessage, acct Account) (string, error)
}

type entry struct {
	fn     Function
	schema *jsonschema.Schema
}

type Registry struct {
	entries map[string]entry
}

func NewRegistry(fns ...Function) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(fns))}
	for _, fn := range fns {
		if fn == nil {
			return nil, errors.New("functions: nil function")
		}
		name := strings.TrimSpace(fn.Name())
		if name == "" {
			return nil, errors.New("functions: empty function name")
		}
		if _, dup := r.entries[name]; dup {
			return nil, fmt.Errorf("functions: duplicate function %q", name)
		}
		e := entry{fn: fn}
		if s := strings.TrimSpace(fn.Schema()); s != "" {
			compiled, err := jsonschema.CompileString(name+".json", s)
			if err != nil {
				return nil, fmt.Errorf("functions: compile schema for %q: %w", name, err)
			}
			e.schema = compiled
		}
		r.entries[name] = e
	}
	return r, nil
}

// Require fails when any of names is not registered.
func (r *Registry) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := r.entries[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("functions: unknown functions: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Call runs the named function. Unknown names are errors; arguments that do
// not satisfy the schema produce a soft message for the assistant.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage, acct Account) (string, error) {
	e, ok := r.entries[name]
	if !ok {
		return "", fmt.Errorf("functions: unknown function %q", name)
	}
	if trimmed := bytes.TrimSpace(args); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		args = json.RawMessage("{}")
	}
	if e.schema != nil {
		var doc any
		if err := json.Unmarshal(args, &doc); err != nil {
			return invalidArgs(name, err), nil
		}
		if err := e.schema.Validate(doc); err != nil {
			return invalidArgs(name, err), nil
		}
	}
	return e.fn.Call(ctx, args, acct)
}

func invalidArgs(name string, err error) string {
	detail := err.Error()
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		detail = ve.Error()
		if leaf := deepestCause(ve); leaf != nil && leaf.Message != "" {
			detail = strings.TrimSpace(leaf.InstanceLocation + " " + leaf.Message)
		}
	}
	return fmt.Sprintf("❌ Argumentos inválidos para %s: %s", name, detail)
}

func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

// fn adapts a typed handler into a Function. Arguments are decoded into A
// after schema validation.
type fn[A any] struct {
	name   string
	schema string
	call   func(ctx context.Context, args A, acct Account) (string, error)
}

func newFunc[A any](name, schema string, call func(ctx context.Context, args A, acct Account) (string, error)) Function {
	return &fn[A]{name: name, schema: schema, call: call}
}

func (f *fn[A]) Name() string   { return f.name }
func (f *fn[A]) Schema() string { return f.schema }

func (f *fn[A]) Call(ctx context.Context, raw json.RawMessage, acct Account) (string, error) {
	var args A
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return invalidArgs(f.name, err), nil
		}
	}
	return f.call(ctx, args, acct)
}
