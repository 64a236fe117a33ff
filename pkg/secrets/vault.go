package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
	"github.com/asaCurry/prescriber-point-sub001/pkg/retry"
)

// AllowedKeys lists the environment variables a Vault secret may populate.
var AllowedKeys = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"OPENFDA_API_KEY",
	"WEBHOOK_SECRET",
	"ADMIN_TOKEN",
	"DB_PASSWORD",
	"REDIS_PASSWORD",
	"TYPESENSE_API_KEY",
}

const defaultVaultPath = "prescriber-point/api"

// VaultConfig describes where the service's secrets live in Vault.
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	Overwrite bool
	// Attempts bounds retries of 5xx and network failures. Zero means 3.
	Attempts int
}

// VaultResult reports how many allowlisted keys were applied to the environment.
type VaultResult struct {
	Enabled  bool
	Path     string
	Loaded   int
	Skipped  int
	Rejected []string
}

// LoadVaultConfigFromEnv reads VAULT_* settings. A non-empty pathOverride
// wins over VAULT_PATH.
func LoadVaultConfigFromEnv(pathOverride string) VaultConfig {
	cfg := VaultConfig{
		Enabled:   envBool("VAULT_ENABLED"),
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     envOr("VAULT_MOUNT", "secret"),
		Path:      pathOverride,
		KVVersion: envInt("VAULT_KV_VERSION", 2),
		Timeout:   time.Duration(envInt("VAULT_TIMEOUT_MS", 5000)) * time.Millisecond,
		Overwrite: envBool("VAULT_OVERWRITE"),
		Attempts:  envInt("VAULT_ATTEMPTS", 3),
	}
	if cfg.Path == "" {
		cfg.Path = envOr("VAULT_PATH", defaultVaultPath)
	}
	return cfg
}

// ApplyVaultSecrets copies allowlisted keys from Vault into the process
// environment ahead of config.Load. Keys outside AllowedKeys are reported
// in Rejected and never exported. Existing values survive unless Overwrite is set.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	if !cfg.Enabled {
		return VaultResult{}, nil
	}
	result := VaultResult{Enabled: true, Path: cfg.Path}

	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return result, errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")
	}

	data, err := fetchSecrets(ctx, cfg)
	if err != nil {
		return result, err
	}

	for key, value := range data {
		if !slices.Contains(AllowedKeys, key) {
			result.Rejected = append(result.Rejected, key)
			continue
		}
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped++
			continue
		}
		if err := os.Setenv(key, secretString(value)); err != nil {
			return result, fmt.Errorf("export %s: %w", key, err)
		}
		result.Loaded++
	}
	slices.Sort(result.Rejected)
	return result, nil
}

// fetchSecrets reads the secret document, retrying Vault 5xx and network errors.
func fetchSecrets(ctx context.Context, cfg VaultConfig) (map[string]any, error) {
	url, err := buildVaultURL(cfg.Addr, cfg.Mount, cfg.Path, cfg.KVVersion)
	if err != nil {
		return nil, err
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	client := &http.Client{Timeout: cfg.Timeout}
	policy := retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		IsRetryable: apperrors.IsTransient,
	}
	body, err := retry.Execute(ctx, policy, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Vault-Token", cfg.Token)
		if cfg.Namespace != "" {
			req.Header.Set("X-Vault-Namespace", cfg.Namespace)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, apperrors.NewTransientError("vault unreachable", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperrors.NewTransientError("vault read failed", err)
		}
		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, apperrors.NewTransientError("vault fetch failed: "+resp.Status, nil)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("vault fetch failed: %s %s", resp.Status, strings.TrimSpace(string(raw)))
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeSecrets(body, cfg.KVVersion)
}

func buildVaultURL(addr, mount, path string, kvVersion int) (string, error) {
	addr = strings.TrimRight(addr, "/")
	mount = strings.Trim(mount, "/")
	path = strings.TrimLeft(path, "/")
	if addr == "" || mount == "" || path == "" {
		return "", errors.New("vault address, mount, and path must be set")
	}
	if kvVersion == 1 {
		return fmt.Sprintf("%s/v1/%s/%s", addr, mount, path), nil
	}
	return fmt.Sprintf("%s/v1/%s/data/%s", addr, mount, path), nil
}

// decodeSecrets unwraps the KV payload. v2 nests the secret under data.data.
func decodeSecrets(body []byte, kvVersion int) (map[string]any, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, fmt.Errorf("vault response missing data for KV v%d", kvVersion)
	}

	if kvVersion == 1 {
		var data map[string]any
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("decode vault KV v1 data: %w", err)
		}
		return data, nil
	}

	var v2 struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(envelope.Data, &v2); err != nil || v2.Data == nil {
		return nil, errors.New("vault response missing data for KV v2")
	}
	return v2.Data, nil
}

func secretString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
