// Package erp exposes the remote business system at its API boundary: a
// declarative registry of the named operations the system offers, and the
// dispatcher that turns an operation plus a credential into an HTTP call.
package erp

import (
	_ "embed"
	"fmt"
	"net/url"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed operations.yaml
var operationsYAML []byte

// Operation declaratively describes one named remote operation: where it
// lives, how it is called, and which fields the remote system insists on.
type Operation struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Endpoint    string `yaml:"endpoint"`
	Method      string `yaml:"method"`

	// Required fields must be supplied by the caller; Optional ones are
	// documented filters. Callers may pass fields beyond these, the
	// remote system tolerates extras.
	Required []string `yaml:"required,omitempty"`
	Optional []string `yaml:"optional,omitempty"`

	// Body marks operations whose parameters travel as a JSON body
	// rather than as query parameters.
	Body bool `yaml:"body,omitempty"`

	// QueryDefaults are query parameters always sent unless overridden
	// (for example the new-record marker on create operations).
	QueryDefaults map[string]string `yaml:"query_defaults,omitempty"`

	// BodyDefaults pre-populate the JSON body of create operations with
	// the remote system's conventional defaults.
	BodyDefaults map[string]interface{} `yaml:"body_defaults,omitempty"`

	// Mirrors fills an absent body field from another supplied field
	// (short code defaults to the full code, and so on).
	Mirrors map[string]string `yaml:"mirrors,omitempty"`
}

// Validate checks that all required fields are present and non-empty.
func (op Operation) Validate(params map[string]string) error {
	for _, field := range op.Required {
		if params[field] == "" {
			return fmt.Errorf("operation %s requires field %s", op.Name, field)
		}
	}
	return nil
}

// BuildRequest assembles the dispatcher request for this operation from
// caller-supplied params and the bearer secret.
func (op Operation) BuildRequest(params map[string]string, secret string) (Request, error) {
	if err := op.Validate(params); err != nil {
		return Request{}, err
	}

	req := Request{
		Endpoint: op.Endpoint,
		Method:   op.Method,
		Query:    url.Values{},
		Secret:   secret,
	}

	for key, value := range op.QueryDefaults {
		req.Query.Set(key, value)
	}

	if !op.Body {
		for key, value := range params {
			req.Query.Set(key, value)
		}
		return req, nil
	}

	body := make(map[string]interface{}, len(op.BodyDefaults)+len(params))
	for key, value := range op.BodyDefaults {
		body[key] = value
	}
	for key, value := range params {
		body[key] = value
	}
	for target, source := range op.Mirrors {
		if _, ok := body[target]; !ok {
			if v, ok := body[source]; ok {
				body[target] = v
			}
		}
	}
	req.Body = body
	return req, nil
}

// Registry holds the known operations, keyed by name.
type Registry struct {
	ops map[string]Operation
}

// NewRegistry loads the built-in operation definitions.
func NewRegistry() (*Registry, error) {
	var doc struct {
		Operations []Operation `yaml:"operations"`
	}
	if err := yaml.Unmarshal(operationsYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse operation definitions: %w", err)
	}

	reg := &Registry{ops: make(map[string]Operation, len(doc.Operations))}
	for _, op := range doc.Operations {
		if op.Name == "" || op.Endpoint == "" || op.Method == "" {
			return nil, fmt.Errorf("operation definition missing name, endpoint or method: %+v", op)
		}
		if _, dup := reg.ops[op.Name]; dup {
			return nil, fmt.Errorf("duplicate operation definition %q", op.Name)
		}
		reg.ops[op.Name] = op
	}
	return reg, nil
}

// Get returns the named operation.
func (r *Registry) Get(name string) (Operation, error) {
	op, ok := r.ops[name]
	if !ok {
		return Operation{}, fmt.Errorf("unknown operation %q", name)
	}
	return op, nil
}

// List returns all operations sorted by name.
func (r *Registry) List() []Operation {
	ops := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}
