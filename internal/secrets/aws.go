// Package secrets implements the domain.SecretProvider boundary. All
// backends report retrieval failures as domain.ErrSecretUnavailable so
// the coordinator treats them as transient infrastructure errors, and
// none of them ever logs resolved material.
package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// AWSProvider resolves secrets from AWS Secrets Manager. The client is
// constructed once at startup and passed into the coordinator as an
// explicit dependency.
type AWSProvider struct {
	client *secretsmanager.Client
}

// NewAWSProvider creates an AWSProvider for the given region using the
// default credential chain.
func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

// Resolve fetches the latest version of the named secret.
func (p *AWSProvider) Resolve(ctx context.Context, name string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: %w: aws get %s: %v", domain.ErrSecretUnavailable, name, err)
	}

	if out.SecretString != nil {
		return *out.SecretString, nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("secrets: %w: aws secret %s has no value", domain.ErrSecretUnavailable, name)
}

// Compile-time interface check.
var _ domain.SecretProvider = (*AWSProvider)(nil)
