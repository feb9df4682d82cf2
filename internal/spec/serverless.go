// Package spec loads service definitions from serverless.yml.
package spec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oriys/pulsar/internal/domain"
)

// Candidate definition file names, in lookup order.
var serviceFiles = []string{"serverless.yml", "serverless.yaml"}

const dynamoDBTableType = "AWS::DynamoDB::Table"

// ServiceSpec is the subset of serverless.yml the dispatcher understands.
type ServiceSpec struct {
	Service   string                           `yaml:"service"`
	Provider  domain.ProviderConfig            `yaml:"provider"`
	Functions map[string]domain.FunctionConfig `yaml:"functions"`
	Custom    CustomSpec                       `yaml:"custom"`
	Resources ResourcesSpec                    `yaml:"resources"`
}

// CustomSpec holds the emulator section of the custom block.
type CustomSpec struct {
	Emulator EmulatorSpec `yaml:"appsync-emulator"`
}

// EmulatorSpec configures build output and local DynamoDB wiring.
type EmulatorSpec struct {
	BuildPrefix string       `yaml:"buildPrefix"`
	DynamoDB    DynamoDBSpec `yaml:"dynamodb"`
}

// DynamoDBSpec names the local endpoint and explicit table aliases.
type DynamoDBSpec struct {
	Endpoint string            `yaml:"endpoint"`
	Tables   map[string]string `yaml:"tables"`
}

// ResourcesSpec holds CloudFormation resources. Only DynamoDB tables are
// read.
type ResourcesSpec struct {
	Resources map[string]ResourceSpec `yaml:"Resources"`
}

// ResourceSpec is one CloudFormation resource.
type ResourceSpec struct {
	Type       string `yaml:"Type"`
	Properties struct {
		TableName string `yaml:"TableName"`
	} `yaml:"Properties"`
}

// Options adjust loading.
type Options struct {
	// File overrides the definition file. Relative paths resolve against
	// the service directory.
	File string
	// Stage overrides provider.stage and is forwarded to the tool.
	Stage string
	// DynamoDBEndpoint overrides custom.appsync-emulator.dynamodb.endpoint.
	DynamoDBEndpoint string
}

// FindServiceFile returns the definition file inside dir.
func FindServiceFile(dir string) (string, error) {
	for _, name := range serviceFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s found in %s", strings.Join(serviceFiles, " or "), dir)
}

// Load reads the service definition in dir and resolves it into a
// ServiceConfig. A .env file next to the definition is loaded too.
func Load(dir string, opts Options) (*domain.ServiceConfig, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve service directory: %w", err)
	}

	path := opts.File
	if path == "" {
		if path, err = FindServiceFile(absDir); err != nil {
			return nil, err
		}
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(absDir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open service file: %w", err)
	}
	defer f.Close()

	spec, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dotEnv, err := LoadDotEnv(absDir)
	if err != nil {
		return nil, err
	}

	svc := spec.Resolve(absDir, opts)
	svc.DotEnv = dotEnv
	return svc, nil
}

// Parse decodes a serverless.yml document.
func Parse(r io.Reader) (*ServiceSpec, error) {
	var spec ServiceSpec
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty service definition")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that every function can be dispatched.
func (s *ServiceSpec) Validate() error {
	if len(s.Functions) == 0 {
		return fmt.Errorf("no functions defined")
	}
	names := make([]string, 0, len(s.Functions))
	for name := range s.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn := s.Functions[name]
		if fn.Handler == "" {
			return fmt.Errorf("function %s: handler is required", name)
		}
		if fn.Runtime == "" && s.Provider.Runtime == "" {
			return fmt.Errorf("function %s: runtime is required (set it on the function or the provider)", name)
		}
	}
	return nil
}

// Resolve builds the ServiceConfig rooted at dir.
func (s *ServiceSpec) Resolve(dir string, opts Options) *domain.ServiceConfig {
	functions := make(map[string]domain.FunctionConfig, len(s.Functions))
	for name, fn := range s.Functions {
		fn.Name = name
		functions[name] = fn
	}

	stage := s.Provider.Stage
	if opts.Stage != "" {
		stage = opts.Stage
	}
	provider := s.Provider
	provider.Stage = stage

	endpoint := s.Custom.Emulator.DynamoDB.Endpoint
	if opts.DynamoDBEndpoint != "" {
		endpoint = opts.DynamoDBEndpoint
	}

	return &domain.ServiceConfig{
		ServiceDirectory: dir,
		BuildPrefix:      s.Custom.Emulator.BuildPrefix,
		Provider:         provider,
		Functions:        functions,
		CLIOptions:       domain.CLIOptions{Stage: opts.Stage},
		DynamoDBTables:   s.DynamoDBTables(),
		DynamoDBEndpoint: endpoint,
	}
}

// DynamoDBTables returns alias to table name. Tables declared under
// resources are aliased by their logical id; explicit aliases in the
// emulator section win.
func (s *ServiceSpec) DynamoDBTables() map[string]string {
	tables := map[string]string{}
	for alias, res := range s.Resources.Resources {
		if res.Type != dynamoDBTableType || res.Properties.TableName == "" {
			continue
		}
		tables[alias] = res.Properties.TableName
	}
	for alias, table := range s.Custom.Emulator.DynamoDB.Tables {
		tables[alias] = table
	}
	return tables
}

// LoadDotEnv reads dir/.env. A missing file yields an empty map.
func LoadDotEnv(dir string) (map[string]string, error) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

// ExampleYAML returns an example service definition.
func ExampleYAML() string {
	return `service: pulsar-example

provider:
  name: aws
  runtime: python3.9
  stage: dev
  environment:
    LOG_LEVEL: info

custom:
  appsync-emulator:
    buildPrefix: .webpack/service
    dynamodb:
      endpoint: http://localhost:8000

functions:
  hello:
    handler: handler.hello
  resize:
    handler: bin/resize.handler
    runtime: go1.x
  greet:
    handler: src/greet.handler
    runtime: native
    environment:
      GREETING: hi

resources:
  Resources:
    UsersTable:
      Type: AWS::DynamoDB::Table
      Properties:
        TableName: users-dev
`
}
