package twentyi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"

	"gitlab.bluewillows.net/root/dns20i/pkg/httputil"
	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

// Credentials is the content of the 20i credentials JSON file.
//
//	{"general_key": "...", "oauth_key": "..."}
type Credentials struct {
	GeneralKey string `json:"general_key"`
	OAuthKey   string `json:"oauth_key,omitempty"`
}

// LoadCredentials reads a credentials file. A file that group or other
// users can access is accepted but logged as a warning.
func LoadCredentials(path string, logger *slog.Logger) (*Credentials, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, provider.ErrConfigMissing("credentials")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	if info.IsDir() {
		return nil, provider.ErrConfigInvalid("credentials", path, "is a directory")
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("unsafe permissions on credentials file",
			slog.String("path", path),
			slog.String("mode", fmt.Sprintf("%04o", perm)),
		)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials %s: %w", path, err)
	}

	creds.GeneralKey = strings.TrimSpace(creds.GeneralKey)
	creds.OAuthKey = strings.TrimSpace(creds.OAuthKey)
	if creds.GeneralKey == "" {
		return nil, provider.ErrConfigMissing("general_key")
	}

	return &creds, nil
}

// BearerToken returns the value 20i expects after "Bearer ": the base64
// encoded general API key.
func (c *Credentials) BearerToken() string {
	return base64.StdEncoding.EncodeToString([]byte(c.GeneralKey))
}

// TokenSource returns a token source for authenticating API requests.
func (c *Credentials) TokenSource() oauth2.TokenSource {
	return httputil.BearerToken(c.BearerToken())
}
