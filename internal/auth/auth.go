// Package auth handles bearer-token storage and retrieval for qkdctl.
//
// Tokens are sourced in the following priority order:
//  1. Environment variable: QKD_TOKEN
//  2. OS Keyring (macOS Keychain, Windows Credential Manager, Linux Secret Service)
//  3. Config file fallback: <user config dir>/qkdctl/token (for non-interactive environments)
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/QKD-VITAP/qkdctl/internal/paths"
)

const (
	// keyringService is the service name used in OS keyring storage.
	keyringService = "qkdctl"
	// keyringUser is the user/account name used in OS keyring storage.
	keyringUser = "token"
	// envVarName is the environment variable for the bearer token.
	envVarName = "QKD_TOKEN"
)

// TokenSource indicates where the token was found.
type TokenSource string

// Token source constants identify where credentials were loaded from.
const (
	SourceEnv     TokenSource = "environment variable"
	SourceKeyring TokenSource = "keyring"
	SourceFile    TokenSource = "config file"
	SourceNone    TokenSource = ""
)

// LoadToken returns the stored bearer token and its source.
// Returns empty strings if no token is found. Storage failures and
// corruption degrade to "no token"; this never returns an error.
func LoadToken() (source TokenSource, token string) {
	// Priority 1: Environment variable
	if tok := os.Getenv(envVarName); tok != "" {
		return SourceEnv, tok
	}

	// Priority 2: OS Keyring
	if tok, err := keyring.Get(keyringService, keyringUser); err == nil && tok != "" {
		return SourceKeyring, tok
	}

	// Priority 3: Config file fallback
	if tok := readTokenFile(); tok != "" {
		return SourceFile, tok
	}

	return SourceNone, ""
}

// StoreToken stores the bearer token in the OS keyring.
// Falls back to file storage if the keyring is unavailable.
func StoreToken(token string) error {
	err := keyring.Set(keyringService, keyringUser, token)
	if err == nil {
		return nil
	}

	return writeTokenFile(token)
}

// DeleteToken removes the stored bearer token from both backends.
// Deleting an absent token is not an error for the caller that just
// wants a clean slate; only a total miss is reported.
func DeleteToken() error {
	keyringErr := keyring.Delete(keyringService, keyringUser)
	fileErr := deleteTokenFile()

	if keyringErr != nil && fileErr != nil {
		return fmt.Errorf("no stored credentials found")
	}

	return nil
}

// tokenFilePath returns the path to the token fallback file.
func tokenFilePath() string {
	path, err := paths.TokenFile()
	if err != nil {
		return ""
	}

	return filepath.Clean(path)
}

// readTokenFile reads the token from the file fallback.
func readTokenFile() string {
	path := tokenFilePath()
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from controlled config directory
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// writeTokenFile writes the token to the file fallback.
func writeTokenFile(token string) error {
	path := tokenFilePath()
	if path == "" {
		return fmt.Errorf("could not determine home directory")
	}

	// Create directory with secure permissions
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write file with secure permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// deleteTokenFile removes the token fallback file.
func deleteTokenFile() error {
	path := tokenFilePath()
	if path == "" {
		return fmt.Errorf("could not determine home directory")
	}

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("token file not found")
	}

	if err != nil {
		return fmt.Errorf("remove token file: %w", err)
	}

	return nil
}
