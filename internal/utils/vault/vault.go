// Package vault reads deployment secrets, such as the custody API key, from
// a HashiCorp Vault KV v2 mount using Kubernetes auth.
package vault

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const defaultTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

type Config struct {
	Addr string
	Role string
	// KVPath is the KV v2 read path, e.g. secret/data/settlement-backend.
	KVPath string
	// TokenPath is the service account token file; the in-cluster path when empty.
	TokenPath string
	Timeout   time.Duration
}

type ISecretSource interface {
	GetKV(ctx context.Context, key string) (string, error)
}

type Client struct {
	cfg    Config
	client *resty.Client
	token  string
}

type loginResponse struct {
	Auth *struct {
		ClientToken string `json:"client_token"`
	} `json:"auth"`
	Errors []string `json:"errors"`
}

type kvResponse struct {
	Data *struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
	Errors []string `json:"errors"`
}

// New logs in with the pod's service account token and returns a client
// holding the resulting Vault token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultTokenPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.Addr, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
	}

	token, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	c.token = token

	return c, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	jwt, err := os.ReadFile(c.cfg.TokenPath)
	if err != nil {
		return "", errors.Wrap(err, "read service account token")
	}

	var out loginResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"jwt":  strings.TrimSpace(string(jwt)),
			"role": c.cfg.Role,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/auth/kubernetes/login")
	if err != nil {
		return "", errors.Wrap(err, "vault login")
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("vault login failed with status %d: %s", resp.StatusCode(), strings.Join(out.Errors, "; "))
	}
	if out.Auth == nil || out.Auth.ClientToken == "" {
		return "", errors.New("vault login returned no client token")
	}

	return out.Auth.ClientToken, nil
}

// GetKV returns one string field of the secret stored at KVPath.
func (c *Client) GetKV(ctx context.Context, key string) (string, error) {
	var out kvResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", c.token).
		SetResult(&out).
		SetError(&out).
		Get("/v1/" + strings.TrimLeft(c.cfg.KVPath, "/"))
	if err != nil {
		return "", errors.Wrap(err, "vault kv get")
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("vault kv get failed with status %d: %s", resp.StatusCode(), strings.Join(out.Errors, "; "))
	}
	if out.Data == nil || out.Data.Data == nil {
		return "", errors.New("vault kv response has no data")
	}

	raw, ok := out.Data.Data[key]
	if !ok {
		return "", fmt.Errorf("secret key '%s' not found", key)
	}
	secret, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key '%s' is not a string", key)
	}

	return secret, nil
}
