// Package config – keyring.go stores the gateway auth token in the OS
// native keyring (Linux: Secret Service, macOS: Keychain, Windows:
// Credential Manager) so it never has to sit in the YAML file.
package config

import (
	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "wawebapi"

	// keyringGatewayToken is the key name for the gateway auth token.
	keyringGatewayToken = "gateway_token"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring. Returns "" when not
// found or the keyring is unavailable.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// GatewayTokenKey is exported for the token CLI command.
const GatewayTokenKey = keyringGatewayToken
