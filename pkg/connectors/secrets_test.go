package connectors

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	body string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.body)}, nil
}

func withFakeSecrets(t *testing.T, body string) {
	t.Helper()

	orig := newSecretsClient
	newSecretsClient = func(_ context.Context, _ string) (secretsAPI, error) {
		return &fakeSecrets{body: body}, nil
	}

	t.Cleanup(func() { newSecretsClient = orig })
}

func TestResolveSecretOverlaysFields(t *testing.T) {
	withFakeSecrets(t, `{"username":"svc","password":"hunter2","host":"db.internal"}`)

	settings, err := resolveSecret(context.Background(), logrus.New(), Settings{
		Service:    "aws",
		SecretName: "prod/warehouse",
		Host:       "ignored.example",
		Database:   "analytics",
	})
	require.NoError(t, err)

	// Secret fields win; fields absent from the secret keep their inline
	// values.
	assert.Equal(t, "svc", settings.Username)
	assert.Equal(t, "hunter2", settings.Password)
	assert.Equal(t, "db.internal", settings.Host)
	assert.Equal(t, "analytics", settings.Database)
}

func TestResolveSecretRejectsUnknownService(t *testing.T) {
	_, err := resolveSecret(context.Background(), logrus.New(), Settings{Service: "vault"})
	require.ErrorIs(t, err, ErrSecretService)
}

func TestResolveSecretRequiresName(t *testing.T) {
	_, err := resolveSecret(context.Background(), logrus.New(), Settings{Service: "aws"})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestResolveSecretBadJSON(t *testing.T) {
	withFakeSecrets(t, "not-json")

	_, err := resolveSecret(context.Background(), logrus.New(), Settings{
		Service:    "aws",
		SecretName: "prod/warehouse",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON")
}
