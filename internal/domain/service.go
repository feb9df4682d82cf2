package domain

import (
	"sort"
	"strings"
)

// ProviderConfig holds provider-wide settings shared by every function.
type ProviderConfig struct {
	Runtime     string            `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Stage       string            `json:"stage,omitempty" yaml:"stage,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// FunctionConfig is the declared configuration of one function.
type FunctionConfig struct {
	Name        string            `json:"name" yaml:"-"`
	Handler     string            `json:"handler" yaml:"handler"`
	Runtime     string            `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Environment map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// CLIOptions are options forwarded to the external invoke-local tool.
type CLIOptions struct {
	Stage string `json:"stage,omitempty"`
}

// ServiceConfig is a fully resolved service: functions, provider settings
// and the data-table wiring injected into every child environment.
type ServiceConfig struct {
	ServiceDirectory string                    `json:"service_directory"`
	BuildPrefix      string                    `json:"build_prefix,omitempty"`
	Provider         ProviderConfig            `json:"provider"`
	Functions        map[string]FunctionConfig `json:"functions"`
	CLIOptions       CLIOptions                `json:"cli_options"`
	DynamoDBTables   map[string]string         `json:"dynamodb_tables,omitempty"`
	DynamoDBEndpoint string                    `json:"dynamodb_endpoint,omitempty"`
	// DotEnv holds variables loaded from the service directory's .env file.
	// They sit on top of the process environment and below everything else.
	DotEnv map[string]string `json:"-"`
}

// Function returns the configuration for name.
func (s *ServiceConfig) Function(name string) (FunctionConfig, bool) {
	if s == nil || s.Functions == nil {
		return FunctionConfig{}, false
	}
	fn, ok := s.Functions[name]
	if ok && fn.Name == "" {
		fn.Name = name
	}
	return fn, ok
}

// FunctionNames returns the declared function names in sorted order.
func (s *ServiceConfig) FunctionNames() []string {
	names := make([]string, 0, len(s.Functions))
	for name := range s.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuntimeFor returns the function runtime, falling back to the provider's.
func (s *ServiceConfig) RuntimeFor(fn FunctionConfig) string {
	if fn.Runtime != "" {
		return fn.Runtime
	}
	return s.Provider.Runtime
}

// SplitHandler splits a "path.method" handler. Only the first two dot
// separated parts are significant.
func SplitHandler(handler string) (handlerPath, method string) {
	parts := strings.Split(handler, ".")
	handlerPath = parts[0]
	if len(parts) > 1 {
		method = parts[1]
	}
	return handlerPath, method
}

// ForeignHandlerMethod returns the name passed to the invoke-local tool.
// Interpreted runtimes are invoked by logical function name; compiled
// runtimes by the built binary, i.e. the last path segment of the handler.
func ForeignHandlerMethod(kind RuntimeKind, functionName, handler string) string {
	if kind.IsCompiled() {
		segments := strings.Split(handler, "/")
		return segments[len(segments)-1]
	}
	return functionName
}
