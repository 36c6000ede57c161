package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// defaultModels is returned when the daemon cannot be reached, so the UI
// still renders a usable model picker.
var defaultModels = []string{"llama3.2:3b", "llama3.1:8b"}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels returns the names of models installed on the daemon. The list
// is best-effort: if the daemon is unreachable a fixed fallback is returned
// together with the error, so callers can degrade instead of failing.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/tags", strings.TrimRight(c.cfg.OllamaHost, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return defaultModels, fmt.Errorf("create tags request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return defaultModels, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return defaultModels, fmt.Errorf("tags endpoint status %s", resp.Status)
	}

	var tr tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return defaultModels, fmt.Errorf("decode tags response: %w", err)
	}

	var models []string
	for _, m := range tr.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			models = append(models, name)
		}
	}
	if len(models) == 0 {
		return defaultModels, nil
	}
	return models, nil
}
