package connectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/wbr/pkg/wbrerr"
)

// secretsAPI is the subset of the Secrets Manager client used here.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput,
		opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsClient is swapped in tests.
var newSecretsClient = func(ctx context.Context, region string) (secretsAPI, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return secretsmanager.NewFromConfig(awsCfg), nil
}

// resolveSecret overlays credential fields from the managed secret onto the
// inline settings. The secret body is a JSON object keyed like the YAML
// config fields.
func resolveSecret(ctx context.Context, log logrus.FieldLogger, s Settings) (Settings, error) {
	if s.Service != "aws" {
		return s, fmt.Errorf("%w: %q", ErrSecretService, s.Service)
	}

	if s.SecretName == "" {
		return s, fmt.Errorf("%w: aws requires secretName", ErrMissingField)
	}

	client, err := newSecretsClient(ctx, s.Region)
	if err != nil {
		return s, wbrerr.New(wbrerr.KindConnection, s.SecretName, "loading aws config: %s", err)
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretName),
	})
	if err != nil {
		return s, wbrerr.New(wbrerr.KindConnection, s.SecretName, "fetching secret: %s", err)
	}

	merged := s
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &merged); err != nil {
		return s, wbrerr.New(wbrerr.KindConnection, s.SecretName, "secret is not a JSON object: %s", err)
	}

	log.WithField("secret", s.SecretName).Debug("Resolved managed credentials")

	return merged, nil
}
