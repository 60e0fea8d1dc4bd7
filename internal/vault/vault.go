// Package vault reads test secrets from a HashiCorp Vault KV storage.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"zapp/pkg/logging"
)

var (
	// ErrTokenMismatch is returned when renewing the token yields a
	// different token than the configured one.
	ErrTokenMismatch = errors.New("vault returned an unknown token on renew")
	// ErrStorageVersion is returned for KV versions other than 1 and 2.
	ErrStorageVersion = errors.New("wrong vault storage version")
)

// Client is a Vault connection with a renewed token.
type Client struct {
	api *vaultapi.Client
}

// Connect opens a client for host and renews token. host may be a bare
// host name, in which case https is assumed.
func Connect(ctx context.Context, host, token string) (*Client, error) {
	cfg := vaultapi.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("failed to read vault config: %w", cfg.Error)
	}
	cfg.Address = address(host)

	api, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	api.SetToken(token)

	c := &Client{api: api}
	if err := c.renew(ctx, token); err != nil {
		return nil, err
	}
	return c, nil
}

func address(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + strings.TrimSuffix(host, "/")
}

func (c *Client) renew(ctx context.Context, token string) error {
	secret, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to renew vault token: %w", err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken != token {
		return ErrTokenMismatch
	}
	return nil
}

// Storage is a KV mount of a given version.
type Storage struct {
	client  *Client
	mount   string
	version int
}

// Storage returns the KV storage mounted at mount.
func (c *Client) Storage(mount string, version int) (*Storage, error) {
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("%w: %d", ErrStorageVersion, version)
	}
	return &Storage{client: c, mount: strings.Trim(mount, "/"), version: version}, nil
}

func (s *Storage) dataPath(path string) string {
	if s.version == 2 {
		return s.mount + "/data/" + strings.TrimPrefix(path, "/")
	}
	return s.mount + "/" + strings.TrimPrefix(path, "/")
}

func (s *Storage) metadataPath(path string) string {
	if s.version == 2 {
		return s.mount + "/metadata/" + strings.TrimPrefix(path, "/")
	}
	return s.mount + "/" + strings.TrimPrefix(path, "/")
}

// Keys reads every key stored at path. A missing path yields nil.
func (s *Storage) Keys(ctx context.Context, path string) (map[string]any, error) {
	secret, err := s.client.api.Logical().ReadWithContext(ctx, s.dataPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	if s.version == 1 {
		return secret.Data, nil
	}
	data, _ := secret.Data["data"].(map[string]any)
	return data, nil
}

// Key reads one key stored at path.
func (s *Storage) Key(ctx context.Context, path, name string) (any, error) {
	keys, err := s.Keys(ctx, path)
	if err != nil {
		return nil, err
	}
	return keys[name], nil
}

// List returns the key names under path.
func (s *Storage) List(ctx context.Context, path string) ([]string, error) {
	secret, err := s.client.api.Logical().ListWithContext(ctx, s.metadataPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	raw, _ := secret.Data["keys"].([]any)
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

// Config selects the secrets to load.
type Config struct {
	Enabled bool
	Host    string
	Token   string
	Mount   string
	Version int
	Path    string
}

// LoadSecrets returns the secrets for the Variable Store. It never fails:
// a disabled or unreachable Vault yields an empty map.
func LoadSecrets(ctx context.Context, cfg Config) map[string]any {
	if !cfg.Enabled {
		logging.Debug("Vault", "Vault disabled, no secrets loaded")
		return map[string]any{}
	}
	if cfg.Token == "" || cfg.Path == "" {
		logging.Info("Vault", "Vault storage unavailable, skipping secrets")
		return map[string]any{}
	}

	client, err := Connect(ctx, cfg.Host, cfg.Token)
	if err != nil {
		if errors.Is(err, ErrTokenMismatch) {
			logging.Warn("Vault", "Failed to renew the vault token: %v", err)
		} else {
			logging.Error("Vault", err, "Vault connection failed")
		}
		return map[string]any{}
	}

	storage, err := client.Storage(cfg.Mount, cfg.Version)
	if err != nil {
		logging.Error("Vault", err, "Vault storage unavailable")
		return map[string]any{}
	}

	secrets, err := storage.Keys(ctx, cfg.Path)
	if err != nil {
		logging.Error("Vault", err, "Failed to read secrets")
		return map[string]any{}
	}
	if secrets == nil {
		secrets = map[string]any{}
	}
	logging.Info("Vault", "Loaded %d secrets from %s", len(secrets), cfg.Path)
	return secrets
}
