package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/talecraft/turnengine/internal/turn"
	"github.com/talecraft/turnengine/pkg/content"
	"github.com/talecraft/turnengine/pkg/state"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// exchange performs one API round trip: GET when body is nil, POST
// otherwise. The response is decoded into out; non-matching status codes
// surface the API's error message when it sent one.
func exchange(client *http.Client, method, url string, body interface{}, wantStatus int, out interface{}) error {
	var resp *http.Response
	var err error

	if method == http.MethodGet {
		resp, err = client.Get(url)
	} else {
		var payload []byte
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		resp, err = client.Post(url, "application/json", bytes.NewReader(payload))
	}
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var apiErr ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func listScenarios(client *http.Client, baseURL string) ([]string, error) {
	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := exchange(client, http.MethodGet, baseURL+"/v1/content/scenarios", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	sort.Strings(resp.IDs)
	return resp.IDs, nil
}

func getScenario(client *http.Client, baseURL string, id string) (*content.Scenario, error) {
	var scen content.Scenario
	if err := exchange(client, http.MethodGet, baseURL+"/v1/content/scenarios/"+id, nil, http.StatusOK, &scen); err != nil {
		return nil, err
	}
	return &scen, nil
}

// CreateGameStateRequest matches the API request structure
type CreateGameStateRequest struct {
	StoryID    string   `json:"story_id"`
	WorldID    string   `json:"world_id"`
	RulesetID  string   `json:"ruleset_id"`
	ScenarioID string   `json:"scenario_id,omitempty"`
	ModuleIDs  []string `json:"module_ids,omitempty"`
	NPCIDs     []string `json:"npc_ids,omitempty"`
}

func createGameState(client *http.Client, baseURL string, req CreateGameStateRequest) (*state.GameState, error) {
	var gs state.GameState
	if err := exchange(client, http.MethodPost, baseURL+"/v1/gamestate", req, http.StatusCreated, &gs); err != nil {
		return nil, fmt.Errorf("failed to create game state: %w", err)
	}
	return &gs, nil
}

func submitTurn(client *http.Client, baseURL string, req *turn.Request) (*turn.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(baseURL+"/v1/turn", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Failed turns still carry a full result body, so decode before
	// looking at the status code.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result turn.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		var apiErr ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("turn request failed: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(raw))
	}

	if result.Failed() {
		return nil, fmt.Errorf("turn failed: %s", result.FailureReason)
	}
	return &result, nil
}
