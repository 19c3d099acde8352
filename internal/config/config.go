package config

import (
	"github.com/arthrod/briefer/internal/secrets"
)

// FileName is the configuration document name inside every consumer
// directory.
const FileName = "briefer.json"

// Canonical configuration keys. Every key doubles as the environment
// variable that overrides it.
const (
	KeyNodeEnv          = "NODE_ENV"
	KeyLogLevel         = "LOG_LEVEL"
	KeyPostgresUsername = "POSTGRES_USERNAME"
	KeyPostgresPassword = "POSTGRES_PASSWORD"
	KeyPostgresHostname = "POSTGRES_HOSTNAME"
	KeyPostgresPort     = "POSTGRES_PORT"
	KeyPostgresDatabase = "POSTGRES_DATABASE"
	KeyJupyterToken     = "JUPYTER_TOKEN"
	KeyAIBasicAuthUser  = "AI_BASIC_AUTH_USERNAME"
	KeyAIBasicAuthPass  = "AI_BASIC_AUTH_PASSWORD"
	KeyLoginJWTSecret   = "LOGIN_JWT_SECRET"
	KeyAuthJWTSecret    = "AUTH_JWT_SECRET"
	KeyEnvVarsEncKey    = "ENVIRONMENT_VARIABLES_ENCRYPTION_KEY"
	KeyDatasourcesKey   = "DATASOURCES_ENCRYPTION_KEY"
	KeyWorkspaceKey     = "WORKSPACE_SECRETS_ENCRYPTION_KEY"
)

// Document is one consumer directory's configuration: a flat mapping of
// canonical keys to string values.
type Document map[string]string

// keySpec describes how a key's default value is produced: either a
// fixed literal or a generated secret of a given byte length.
type keySpec struct {
	name        string
	literal     string
	secretBytes int
}

// schema is the full default-document table. Secret byte lengths are
// contractual: 32-byte values back encryption keys and signing secrets,
// 8-byte values back basic-auth credentials.
var schema = []keySpec{
	{name: KeyNodeEnv, literal: "production"},
	{name: KeyLogLevel, literal: "info"},
	{name: KeyPostgresUsername, literal: "briefer"},
	{name: KeyPostgresPassword, literal: "briefer"},
	{name: KeyPostgresHostname, literal: "localhost"},
	{name: KeyPostgresPort, literal: "5432"},
	{name: KeyPostgresDatabase, literal: "briefer"},
	{name: KeyJupyterToken, secretBytes: secrets.TokenBytes},
	{name: KeyAIBasicAuthUser, secretBytes: secrets.CredentialBytes},
	{name: KeyAIBasicAuthPass, secretBytes: secrets.CredentialBytes},
	{name: KeyLoginJWTSecret, secretBytes: secrets.TokenBytes},
	{name: KeyAuthJWTSecret, secretBytes: secrets.TokenBytes},
	{name: KeyEnvVarsEncKey, secretBytes: secrets.TokenBytes},
	{name: KeyDatasourcesKey, secretBytes: secrets.TokenBytes},
	{name: KeyWorkspaceKey, secretBytes: secrets.TokenBytes},
}

// Keys returns the canonical key set in schema order.
func Keys() []string {
	keys := make([]string, 0, len(schema))
	for _, spec := range schema {
		keys = append(keys, spec.name)
	}
	return keys
}

// GenerateDefaults builds a full default document from the schema
// table. Secret-valued keys get fresh random values on every call.
func GenerateDefaults() (Document, error) {
	doc := make(Document, len(schema))
	for _, spec := range schema {
		if spec.secretBytes > 0 {
			value, err := secrets.Token(spec.secretBytes)
			if err != nil {
				return nil, err
			}
			doc[spec.name] = value
			continue
		}
		doc[spec.name] = spec.literal
	}
	return doc, nil
}
