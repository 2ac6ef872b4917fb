package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the part of the Secrets Manager client used here
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsClient creates a Secrets Manager client from the default AWS
// configuration chain
func NewSecretsClient(ctx context.Context) (*secretsmanager.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// DBSecret represents the structure of database credentials in Secrets Manager
type DBSecret struct {
	Host     string   `json:"host"`
	Port     PortType `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Database string   `json:"dbname"`
}

// PortType handles JSON port values that can be either string or int
type PortType int

// UnmarshalJSON handles both string and int port values from JSON
func (p *PortType) UnmarshalJSON(data []byte) error {
	var intVal int
	if err := json.Unmarshal(data, &intVal); err == nil {
		*p = PortType(intVal)
		return nil
	}

	var strVal string
	if err := json.Unmarshal(data, &strVal); err == nil {
		intVal, err := strconv.Atoi(strVal)
		if err != nil {
			return fmt.Errorf("port string %q is not a valid integer: %w", strVal, err)
		}
		*p = PortType(intVal)
		return nil
	}

	return fmt.Errorf("port must be a string or integer, got: %s", string(data))
}

// Config converts the secret into a validated connection config
func (s DBSecret) Config() (*Config, error) {
	cfg := &Config{
		Host:     s.Host,
		Port:     strconv.Itoa(int(s.Port)),
		User:     s.Username,
		Password: s.Password,
		Database: s.Database,
		SSLMode:  "require",
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromSecretsManager fetches database credentials from AWS Secrets Manager
func LoadConfigFromSecretsManager(ctx context.Context, client SecretsAPI, secretName string) (*Config, error) {
	value, err := getSecretString(ctx, client, secretName)
	if err != nil {
		return nil, err
	}

	var secret DBSecret
	if err := json.Unmarshal([]byte(value), &secret); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}
	return secret.Config()
}

// SecretsManagerResolver resolves job API token references stored as
// Secrets Manager secret ids. A secret holding a JSON object yields its
// "token" field; any other secret is used verbatim.
type SecretsManagerResolver struct {
	client SecretsAPI
}

// NewSecretsManagerResolver creates a resolver using client
func NewSecretsManagerResolver(client SecretsAPI) *SecretsManagerResolver {
	return &SecretsManagerResolver{client: client}
}

// Resolve implements services.SecretResolver. An empty reference resolves
// to an empty token.
func (r *SecretsManagerResolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}

	value, err := getSecretString(ctx, r.client, ref)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && wrapped.Token != "" {
			return wrapped.Token, nil
		}
	}
	return trimmed, nil
}

func getSecretString(ctx context.Context, client SecretsAPI, secretID string) (string, error) {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret %s: %w", secretID, err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}
	return *result.SecretString, nil
}
