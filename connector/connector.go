// Package connector specifies the connector and connector-registry
// contracts (spec §6.2/§6.3). Concrete connector implementations (CSV,
// Parquet, S3, JDBC) are out of scope; this package is the seam a real
// connector plugs into.
package connector

import "context"

// Chunk exposes a columnar batch of rows read from a source connector.
// Column order and names are stable across chunks from the same read.
type Chunk interface {
	Columns() []string
	Rows() [][]interface{}
	Len() int
}

// ConnectionTestResult is returned by Source.TestConnection.
type ConnectionTestResult struct {
	IsSuccessful bool
	Message      string
}

// Source is the contract a source connector implements.
type Source interface {
	Read(ctx context.Context) (<-chan Chunk, <-chan error)
}

// ConnectionTester is an optional Source capability.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (ConnectionTestResult, error)
}

// IncrementalSource is an optional Source capability for cursor-based
// incremental reads.
type IncrementalSource interface {
	ReadIncremental(ctx context.Context, cursorField string, afterValue interface{}) (<-chan Chunk, <-chan error)
}

// Destination is the contract a destination connector implements.
type Destination interface {
	Write(ctx context.Context, data Chunk, options map[string]interface{}) error
}

// SourceFactory and DestinationFactory construct a connector of a given type
// from resolved configuration.
type SourceFactory func(resolvedConfig map[string]interface{}) (Source, error)
type DestinationFactory func(resolvedConfig map[string]interface{}) (Destination, error)

// Descriptor documents one registered connector type, replacing the
// reflection-based parameter extraction the original relied on (DESIGN
// NOTES §9: "do not port the reflection layer; replace with explicit
// parameter-descriptor structs").
type Descriptor struct {
	Type            string
	Defaults        map[string]interface{}
	RequiredParams  []string
	OptionalParams  []string
	Description     string
}

// ResolvedConfig is the result of Registry.ResolveConfiguration.
type ResolvedConfig struct {
	Config             map[string]interface{}
	OverriddenParams   []string
	ValidationWarnings []string
}

// Registry is the connector registry contract (spec §6.3): a stateless
// factory lookup keyed by connector type, populated once at startup.
type Registry struct {
	sources      map[string]registeredSource
	destinations map[string]registeredDestination
}

type registeredSource struct {
	ctor       SourceFactory
	descriptor Descriptor
}

type registeredDestination struct {
	ctor       DestinationFactory
	descriptor Descriptor
}

// NewRegistry returns an empty registry. Callers register connector types
// before building an ExecutionContext with it (DESIGN NOTES §9: prefer
// explicit injection through the ExecutionContext over a global singleton).
func NewRegistry() *Registry {
	return &Registry{
		sources:      map[string]registeredSource{},
		destinations: map[string]registeredDestination{},
	}
}

// RegisterSource records a source connector type.
func (r *Registry) RegisterSource(d Descriptor, ctor SourceFactory) {
	r.sources[d.Type] = registeredSource{ctor: ctor, descriptor: d}
}

// RegisterDestination records a destination connector type.
func (r *Registry) RegisterDestination(d Descriptor, ctor DestinationFactory) {
	r.destinations[d.Type] = registeredDestination{ctor: ctor, descriptor: d}
}

// CreateSourceConnector instantiates a registered source connector type.
func (r *Registry) CreateSourceConnector(connType string, resolvedConfig map[string]interface{}) (Source, error) {
	reg, ok := r.sources[connType]
	if !ok {
		return nil, unknownConnectorError(connType)
	}
	return reg.ctor(resolvedConfig)
}

// CreateDestinationConnector instantiates a registered destination connector type.
func (r *Registry) CreateDestinationConnector(connType string, resolvedConfig map[string]interface{}) (Destination, error) {
	reg, ok := r.destinations[connType]
	if !ok {
		return nil, unknownConnectorError(connType)
	}
	return reg.ctor(resolvedConfig)
}

// ResolveConfiguration merges defaults, profile params, and override options
// with precedence override > profile > defaults (spec §6.3).
func (r *Registry) ResolveConfiguration(connType string, isSource bool, profileParams, overrideOptions map[string]interface{}) (ResolvedConfig, error) {
	var descriptor Descriptor
	if isSource {
		reg, ok := r.sources[connType]
		if !ok {
			return ResolvedConfig{}, unknownConnectorError(connType)
		}
		descriptor = reg.descriptor
	} else {
		reg, ok := r.destinations[connType]
		if !ok {
			return ResolvedConfig{}, unknownConnectorError(connType)
		}
		descriptor = reg.descriptor
	}

	resolved := map[string]interface{}{}
	for k, v := range descriptor.Defaults {
		resolved[k] = v
	}
	for k, v := range profileParams {
		resolved[k] = v
	}
	var overridden []string
	for k, v := range overrideOptions {
		resolved[k] = v
		overridden = append(overridden, k)
	}

	var warnings []string
	for _, required := range descriptor.RequiredParams {
		if _, ok := resolved[required]; !ok {
			warnings = append(warnings, "missing required parameter: "+required)
		}
	}

	return ResolvedConfig{Config: resolved, OverriddenParams: overridden, ValidationWarnings: warnings}, nil
}

func unknownConnectorError(connType string) error {
	return &UnknownConnectorError{Type: connType}
}

// UnknownConnectorError reports a connector type with no registered factory.
type UnknownConnectorError struct {
	Type string
}

func (e *UnknownConnectorError) Error() string {
	return "unknown connector type: " + e.Type
}
