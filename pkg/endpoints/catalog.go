package endpoints

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrUnknownOperation is returned when a named operation is not in the catalog.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMissingArgument is returned when a required caller argument is absent or blank.
	ErrMissingArgument = errors.New("missing required argument")
)

// Common argument names shared by several operations.
const (
	ArgSeason     = "Season"
	ArgSeasonType = "SeasonType"
	ArgPlayerID   = "PlayerID"
	ArgGameID     = "GameID"
)

// Season types accepted by the upstream.
const (
	RegularSeason = "Regular Season"
	Playoffs      = "Playoffs"
	PlayIn        = "PlayIn"
	PreSeason     = "Pre Season"
)

// Args are caller-supplied parameter values keyed by upstream parameter name.
type Args map[string]string

// Operation is a declarative (endpoint, parameter template) pair.
type Operation struct {
	Name        string            `yaml:"name"`
	Endpoint    string            `yaml:"endpoint"`
	Description string            `yaml:"description"`
	Required    []string          `yaml:"required"`
	Params      map[string]string `yaml:"params"`
}

// Catalog holds the named operations by name.
type Catalog struct {
	operations map[string]Operation
}

type catalogFile struct {
	Operations []Operation `yaml:"operations"`
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	catalog, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("endpoints: embedded catalog is invalid: %v", err))
	}
	return catalog
}

// Parse builds a catalog from a YAML document
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	catalog := &Catalog{operations: make(map[string]Operation, len(file.Operations))}
	for _, op := range file.Operations {
		if err := catalog.Register(op); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// Register adds an operation to the catalog, replacing any existing
// operation of the same name.
func (c *Catalog) Register(op Operation) error {
	op.Name = strings.TrimSpace(op.Name)
	op.Endpoint = strings.TrimSpace(op.Endpoint)
	if op.Name == "" {
		return errors.New("operation name is required")
	}
	if op.Endpoint == "" {
		return fmt.Errorf("operation %q: endpoint is required", op.Name)
	}
	if op.Params == nil {
		op.Params = map[string]string{}
	}
	c.operations[op.Name] = op
	return nil
}

// Lookup returns the named operation
func (c *Catalog) Lookup(name string) (Operation, bool) {
	op, ok := c.operations[name]
	return op, ok
}

// Names returns operation names in sorted order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render fills the named operation's template with args and returns the
// resulting Request.
func (c *Catalog) Render(name string, args Args) (Request, error) {
	op, ok := c.operations[name]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return op.Render(args)
}

// Render fills the operation's template with args. Arguments that are not
// in the template are passed through as extra filters.
func (op Operation) Render(args Args) (Request, error) {
	var missing []string
	for _, name := range op.Required {
		if strings.TrimSpace(args[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Request{}, fmt.Errorf("%w for %s: %s", ErrMissingArgument, op.Name, strings.Join(missing, ", "))
	}

	params := make(map[string]string, len(op.Params)+len(args))
	for k, v := range op.Params {
		params[k] = v
	}
	for k, v := range args {
		params[k] = v
	}
	return NewRequest(op.Endpoint, params), nil
}
