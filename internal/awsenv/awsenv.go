// Package awsenv resolves AWS region and credential defaults for worker
// environments.
//
// Handlers that talk to DynamoDB (local or remote) expect the usual AWS_*
// variables. When the invoking shell does not provide them, they are
// resolved through the SDK's default chain; if the chain finds nothing and
// a local DynamoDB endpoint is in use, static placeholder credentials are
// supplied since DynamoDB Local accepts any key.
package awsenv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/oriys/pulsar/internal/logging"
)

const (
	DefaultRegion = "us-east-1"

	placeholderKey    = "pulsar"
	placeholderSecret = "pulsar"
	resolveTimeout    = 3 * time.Second
)

// Variables managed by this package.
const (
	EnvRegion        = "AWS_REGION"
	EnvDefaultRegion = "AWS_DEFAULT_REGION"
	EnvAccessKeyID   = "AWS_ACCESS_KEY_ID"
	EnvSecretKey     = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken  = "AWS_SESSION_TOKEN"
)

// Options configures resolution.
type Options struct {
	// Region overrides the region found by the default chain.
	Region string
	// Profile selects a shared config profile.
	Profile string
	// LocalEndpoint reports that DynamoDB traffic goes to a local endpoint,
	// which enables placeholder credentials.
	LocalEndpoint bool
}

// Defaults returns AWS variables for keys not already present. present
// reports whether a key is set by a lower environment layer.
func Defaults(ctx context.Context, opts Options, present func(key string) bool) (map[string]string, error) {
	out := map[string]string{}
	needRegion := !present(EnvRegion) && !present(EnvDefaultRegion)
	needCreds := !present(EnvAccessKeyID) || !present(EnvSecretKey)
	if !needRegion && !needCreds {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	cfg, err := load(ctx, opts)
	if err != nil {
		return nil, err
	}

	if needRegion {
		region := cfg.Region
		if region == "" {
			region = DefaultRegion
		}
		out[EnvRegion] = region
		out[EnvDefaultRegion] = region
	}

	if needCreds {
		creds, err := retrieve(ctx, cfg.Credentials)
		if err != nil && opts.LocalEndpoint {
			logging.Op().Debug("no AWS credentials found, using placeholders for local endpoint", "error", err)
			creds, err = credentials.NewStaticCredentialsProvider(placeholderKey, placeholderSecret, "").Retrieve(ctx)
		}
		if err != nil {
			logging.Op().Debug("no AWS credentials found", "error", err)
			return out, nil
		}
		out[EnvAccessKeyID] = creds.AccessKeyID
		out[EnvSecretKey] = creds.SecretAccessKey
		if creds.SessionToken != "" {
			out[EnvSessionToken] = creds.SessionToken
		}
	}
	return out, nil
}

func load(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func retrieve(ctx context.Context, provider aws.CredentialsProvider) (aws.Credentials, error) {
	if provider == nil {
		return aws.Credentials{}, fmt.Errorf("no credentials provider")
	}
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	if !creds.HasKeys() {
		return aws.Credentials{}, fmt.Errorf("credentials have no keys")
	}
	return creds, nil
}
