package dispatcher

import (
	"sort"
	"strings"

	"github.com/oriys/pulsar/internal/domain"
)

// Environment variables set on every worker.
const (
	EnvRequestID        = "PULSAR_REQUEST_ID"
	EnvDynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	tablePrefix         = "DYNAMODB_TABLE_"
)

// envBuilder merges environment layers; later layers win.
type envBuilder struct {
	values map[string]string
}

func newEnvBuilder(base []string) *envBuilder {
	b := &envBuilder{values: make(map[string]string, len(base))}
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		b.values[k] = v
	}
	return b
}

func (b *envBuilder) set(key, value string) {
	b.values[key] = value
}

func (b *envBuilder) merge(layer map[string]string) {
	for k, v := range layer {
		b.set(k, v)
	}
}

func (b *envBuilder) has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// list returns KEY=VALUE entries sorted by key.
func (b *envBuilder) list() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+b.values[k])
	}
	return out
}

// EnvLayers are the inputs of a worker environment, lowest first.
type EnvLayers struct {
	Base        []string
	DotEnv      map[string]string
	AWSDefaults map[string]string
	Service     *domain.ServiceConfig
	Function    domain.FunctionConfig
	// Invocation holds per-call values such as the request id and trace
	// context. They are applied last.
	Invocation map[string]string
}

// BuildEnv merges the layers in order: base process environment, the
// service .env file, AWS defaults, one DYNAMODB_TABLE_<alias> per table,
// DYNAMODB_ENDPOINT when set, provider environment, function environment
// and finally the per-invocation values.
func BuildEnv(l EnvLayers) []string {
	b := newEnvBuilder(l.Base)
	b.merge(l.DotEnv)
	b.merge(l.AWSDefaults)
	if svc := l.Service; svc != nil {
		for alias, table := range svc.DynamoDBTables {
			b.set(tablePrefix+alias, table)
		}
		if svc.DynamoDBEndpoint != "" {
			b.set(EnvDynamoDBEndpoint, svc.DynamoDBEndpoint)
		}
		b.merge(svc.Provider.Environment)
	}
	b.merge(l.Function.Environment)
	b.merge(l.Invocation)
	return b.list()
}
