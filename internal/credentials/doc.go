// Package credentials persists provider API keys outside the config file.
//
// Two backends satisfy ai.CredentialStore: a SQLite database with embedded
// migrations and a JSON file guarded by an advisory lock. Both encrypt keys
// with AES-256-GCM when a secret is configured and read legacy plaintext
// values unchanged.
package credentials
