//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/scanner"
)

// createTemplateFile writes content to dir/name and returns the path.
func createTemplateFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// createTemplatesDir creates a directory holding files, keyed by name.
func createTemplatesDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		createTemplateFile(t, dir, name, content)
	}
	return dir
}

// scanTemplates scans dir into a fresh registry. Scan failures are kept in
// the returned collector.
func scanTemplates(t *testing.T, dir string) (*registry.TemplateRegistry, *scanner.TemplateScanner, *errors.ErrorCollector) {
	t.Helper()
	reg := registry.NewTemplateRegistry()
	collector := errors.NewErrorCollector()
	s := scanner.NewTemplateScanner(reg, logging.Nop(), scanner.WithCollector(collector))
	t.Cleanup(func() { _ = s.Close() })
	_ = s.ScanDirectory(context.Background(), dir)
	return reg, s, collector
}

// renderTemplate renders id from reg and serializes the result.
func renderTemplate(reg *registry.TemplateRegistry, id string, data any) (string, error) {
	out, err := engine.New(reg).RenderTemplate(id, data)
	if err != nil {
		return "", err
	}
	return markup.RenderString(out)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Templates int       `json:"templates"`
	Clients   int       `json:"clients"`
}

// WaitForServerReadiness polls baseURL/health until it reports healthy or
// ctx is done.
func WaitForServerReadiness(ctx context.Context, baseURL string) (*HealthResponse, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("server not ready: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
			health, err := checkServerHealth(ctx, client, baseURL)
			if err != nil {
				lastErr = err
				continue
			}
			return health, nil
		}
	}
}

func checkServerHealth(ctx context.Context, client *http.Client, baseURL string) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "healthy" {
		return nil, fmt.Errorf("server status is %s", health.Status)
	}
	return &health, nil
}
