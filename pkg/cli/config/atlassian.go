package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/service/atlassian"
	"github.com/secmon-lab/flowlens/pkg/service/vault"
	"github.com/urfave/cli/v3"
)

// Atlassian holds CLI flags for the Atlassian OAuth application and
// the secrets protecting stored tokens and sessions.
type Atlassian struct {
	clientID      string
	clientSecret  string
	redirectURI   string
	encryptionKey string
	sessionSecret string
}

// Flags returns CLI flags for Atlassian OAuth configuration
func (a *Atlassian) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "atlassian-client-id",
			Usage:       "Atlassian OAuth application client ID",
			Sources:     cli.EnvVars("FLOWLENS_ATLASSIAN_CLIENT_ID"),
			Destination: &a.clientID,
		},
		&cli.StringFlag{
			Name:        "atlassian-client-secret",
			Usage:       "Atlassian OAuth application client secret",
			Sources:     cli.EnvVars("FLOWLENS_ATLASSIAN_CLIENT_SECRET"),
			Destination: &a.clientSecret,
		},
		&cli.StringFlag{
			Name:        "atlassian-redirect-uri",
			Usage:       "OAuth callback URL registered on the Atlassian application",
			Sources:     cli.EnvVars("FLOWLENS_ATLASSIAN_REDIRECT_URI"),
			Destination: &a.redirectURI,
		},
		&cli.StringFlag{
			Name:        "token-encryption-key",
			Usage:       "Base64 encoded 32 byte key for encrypting stored OAuth tokens",
			Sources:     cli.EnvVars("FLOWLENS_TOKEN_ENCRYPTION_KEY"),
			Destination: &a.encryptionKey,
		},
		&cli.StringFlag{
			Name:        "session-secret",
			Usage:       "Secret for signing browser session tokens (32 bytes or longer)",
			Sources:     cli.EnvVars("FLOWLENS_SESSION_SECRET"),
			Destination: &a.sessionSecret,
		},
	}
}

// LogValue renders the configuration for startup logging, masking secrets
func (a Atlassian) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("client_id", a.clientID),
		slog.Bool("client_secret_set", a.clientSecret != ""),
		slog.String("redirect_uri", a.redirectURI),
		slog.Bool("encryption_key_set", a.encryptionKey != ""),
		slog.Bool("session_secret_set", a.sessionSecret != ""),
	)
}

// SessionSecret returns the raw session signing secret
func (a *Atlassian) SessionSecret() []byte {
	return []byte(a.sessionSecret)
}

// ConfigureOAuth builds the Atlassian OAuth client
func (a *Atlassian) ConfigureOAuth() (*atlassian.OAuth, error) {
	if a.clientID == "" || a.clientSecret == "" || a.redirectURI == "" {
		return nil, goerr.New("atlassian-client-id, atlassian-client-secret and atlassian-redirect-uri are required")
	}
	return atlassian.NewOAuth(a.clientID, a.clientSecret, a.redirectURI)
}

// ConfigureVault builds the token vault from the encryption key
func (a *Atlassian) ConfigureVault() (*vault.Vault, error) {
	if a.encryptionKey == "" {
		return nil, goerr.New("token-encryption-key is required")
	}
	return vault.NewFromBase64(a.encryptionKey)
}
