package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

const (
	SourceEnv = "env"
	SourceAWS = "aws"
)

// Provider resolves a secret value (e.g. a signing key) by name.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// Ref names a secret in a specific source, written "env:NAME" or "aws:SECRET_ID".
// A bare name is an env reference.
type Ref struct {
	Source string
	Key    string
}

func (r Ref) String() string { return r.Source + ":" + r.Key }

func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty secret reference", ErrInvalidConfig)
	}
	source, key, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{Source: SourceEnv, Key: s}, nil
	}
	source = strings.ToLower(strings.TrimSpace(source))
	key = strings.TrimSpace(key)
	switch source {
	case SourceEnv, SourceAWS:
	default:
		return Ref{}, fmt.Errorf("%w: unsupported secret source %q", ErrInvalidConfig, source)
	}
	if key == "" {
		return Ref{}, fmt.Errorf("%w: empty secret key in %q", ErrInvalidConfig, s)
	}
	return Ref{Source: source, Key: key}, nil
}

// Resolve reads ref from the matching provider. The AWS provider is created lazily by newAWS
// so env-only runs never load AWS configuration.
func Resolve(ctx context.Context, ref Ref, newAWS func(context.Context) (Provider, error)) (string, error) {
	switch ref.Source {
	case SourceEnv:
		return NewEnv().Get(ctx, ref.Key)
	case SourceAWS:
		if newAWS == nil {
			return "", fmt.Errorf("%w: no aws provider", ErrInvalidConfig)
		}
		p, err := newAWS(ctx)
		if err != nil {
			return "", err
		}
		return p.Get(ctx, ref.Key)
	default:
		return "", fmt.Errorf("%w: unsupported secret source %q", ErrInvalidConfig, ref.Source)
	}
}

type awsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSProvider struct {
	client awsClient
}

func NewAWS(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client awsClient) (*AWSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWSProvider{client: client}, nil
}

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("%w: nil aws provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty secret key", ErrInvalidConfig)
	}
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", key, err)
	}
	if out.SecretString != nil && strings.TrimSpace(*out.SecretString) != "" {
		return strings.TrimSpace(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return strings.TrimSpace(string(out.SecretBinary)), nil
	}
	return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, key)
}

// EnvProvider reads secrets from the process environment.
type EnvProvider struct{}

func NewEnv() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil env provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty env key", ErrInvalidConfig)
	}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, key)
	}
	return v, nil
}
