package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// EnvProvider resolves secrets from process environment variables. The
// secret name is used verbatim as the variable name.
type EnvProvider struct{}

// NewEnvProvider creates an EnvProvider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// Resolve returns the value of the environment variable with the given
// name.
func (p *EnvProvider) Resolve(_ context.Context, name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("secrets: %w: env %s not set", domain.ErrSecretUnavailable, name)
	}
	return v, nil
}

// StaticProvider serves a fixed name-to-value mapping resolved at
// startup, typically from a local (optionally encrypted) keyfile. Used
// for development deployments and as a deterministic test double.
type StaticProvider struct {
	values map[string]string
}

// NewStaticProvider creates a StaticProvider over a copy of the given
// mapping.
func NewStaticProvider(values map[string]string) *StaticProvider {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticProvider{values: copied}
}

// Resolve returns the configured value for name.
func (p *StaticProvider) Resolve(_ context.Context, name string) (string, error) {
	v, ok := p.values[name]
	if !ok || v == "" {
		return "", fmt.Errorf("secrets: %w: no static value for %s", domain.ErrSecretUnavailable, name)
	}
	return v, nil
}

// Compile-time interface checks.
var (
	_ domain.SecretProvider = (*EnvProvider)(nil)
	_ domain.SecretProvider = (*StaticProvider)(nil)
)
