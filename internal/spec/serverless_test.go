package spec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oriys/pulsar/internal/domain"
)

func writeService(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadExample(t *testing.T) {
	dir := writeService(t, map[string]string{
		"serverless.yml": ExampleYAML(),
		".env":           "FROM_DOTENV=1\nLOG_LEVEL=debug\n",
	})

	svc, err := Load(dir, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if svc.BuildPrefix != ".webpack/service" {
		t.Fatalf("build prefix = %q", svc.BuildPrefix)
	}
	if svc.Provider.Stage != "dev" || svc.CLIOptions.Stage != "" {
		t.Fatalf("stage = %q / cli %q", svc.Provider.Stage, svc.CLIOptions.Stage)
	}
	if svc.DynamoDBEndpoint != "http://localhost:8000" {
		t.Fatalf("endpoint = %q", svc.DynamoDBEndpoint)
	}
	if svc.DynamoDBTables["UsersTable"] != "users-dev" {
		t.Fatalf("tables = %v", svc.DynamoDBTables)
	}
	if svc.DotEnv["FROM_DOTENV"] != "1" {
		t.Fatalf("dotenv = %v", svc.DotEnv)
	}

	fn, ok := svc.Function("resize")
	if !ok || fn.Name != "resize" || fn.Runtime != "go1.x" {
		t.Fatalf("resize = %+v", fn)
	}
	if got := domain.DetectRuntime(svc.RuntimeFor(fn)); got != domain.KindGo {
		t.Fatalf("runtime kind = %v", got)
	}
	hello, _ := svc.Function("hello")
	if svc.RuntimeFor(hello) != "python3.9" {
		t.Fatalf("hello runtime = %q", svc.RuntimeFor(hello))
	}
	if names := strings.Join(svc.FunctionNames(), ","); names != "greet,hello,resize" {
		t.Fatalf("names = %s", names)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := writeService(t, map[string]string{"custom.yaml": ExampleYAML()})

	svc, err := Load(dir, Options{File: "custom.yaml", Stage: "prod", DynamoDBEndpoint: "http://dynamo:8000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if svc.Provider.Stage != "prod" || svc.CLIOptions.Stage != "prod" {
		t.Fatalf("stage = %q / %q", svc.Provider.Stage, svc.CLIOptions.Stage)
	}
	if svc.DynamoDBEndpoint != "http://dynamo:8000" {
		t.Fatalf("endpoint = %q", svc.DynamoDBEndpoint)
	}
	if len(svc.DotEnv) != 0 {
		t.Fatalf("expected empty dotenv, got %v", svc.DotEnv)
	}
}

func TestExplicitTableAliasWins(t *testing.T) {
	spec := &ServiceSpec{}
	spec.Resources.Resources = map[string]ResourceSpec{
		"Users": {Type: dynamoDBTableType},
		"Queue": {Type: "AWS::SQS::Queue"},
	}
	users := spec.Resources.Resources["Users"]
	users.Properties.TableName = "users-from-resources"
	spec.Resources.Resources["Users"] = users
	spec.Custom.Emulator.DynamoDB.Tables = map[string]string{"Users": "users-explicit"}

	tables := spec.DynamoDBTables()
	if len(tables) != 1 || tables["Users"] != "users-explicit" {
		t.Fatalf("tables = %v", tables)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "empty service definition"},
		{"no functions", "service: x\n", "no functions defined"},
		{"no handler", "provider:\n  runtime: python3.9\nfunctions:\n  a: {}\n", "handler is required"},
		{"no runtime", "functions:\n  a:\n    handler: h.a\n", "runtime is required"},
		{"bad yaml", "functions: [", "decode yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestMissingServiceFile(t *testing.T) {
	if _, err := Load(t.TempDir(), Options{}); err == nil {
		t.Fatal("expected error for directory without serverless.yml")
	}
}
