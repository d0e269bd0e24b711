// Package main is a CLI for managing OAuth2 client registrations in the
// token service: register clients one at a time or from a JSON file, and
// look up existing registrations.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// registeredClient is the registration response, including the plaintext
// secret which the server returns exactly once.
type registeredClient struct {
	ID           string    `json:"id"`
	Secret       string    `json:"secret,omitempty"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	GrantTypes   []string  `json:"grant_types"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type clientConfig struct {
	Name         string   `json:"name"`
	Secret       string   `json:"secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
}

type clientManager struct {
	baseURL string
	client  *http.Client
}

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Token service base URL")
		configFile = flag.String("config", "", "Path to client configuration file")
		action     = flag.String("action", "register", "Action to perform: register, get")
		clientID   = flag.String("client-id", "", "Client ID for get operations")
		name       = flag.String("name", "", "Client name for single registration")
		redirects  = flag.String("redirects", "", "Comma-separated redirect URIs")
		scopes     = flag.String("scopes", "", "Comma-separated scopes")
		grants     = flag.String("grants", "", "Comma-separated grant types")
	)
	flag.Parse()

	manager := &clientManager{
		baseURL: *baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	switch *action {
	case "register":
		switch {
		case *configFile != "":
			if err := manager.registerFromConfig(*configFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error registering from config: %v\n", err)
				os.Exit(1)
			}
		case *name != "":
			cfg := clientConfig{
				Name:         *name,
				RedirectURIs: parseStringList(*redirects),
				Scopes:       parseStringList(*scopes),
				GrantTypes:   parseStringList(*grants),
			}
			client, err := manager.registerClient(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error registering client: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Client registered successfully:")
			printClient(client)
		default:
			fmt.Fprintln(os.Stderr, "Please specify -name or -config for registration")
			os.Exit(1)
		}
	case "get":
		if *clientID == "" {
			fmt.Fprintln(os.Stderr, "Client ID is required for get operation")
			os.Exit(1)
		}
		client, err := manager.getClient(*clientID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting client: %v\n", err)
			os.Exit(1)
		}
		printClient(client)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

// validateConfigPath rejects paths with traversal sequences and
// non-JSON files.
func validateConfigPath(configPath string) error {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return errors.New("directory traversal not allowed in config path")
	}
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must be a JSON file")
	}

	return nil
}

func (cm *clientManager) registerFromConfig(configPath string) error {
	if err := validateConfigPath(configPath); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	// #nosec G304 - configPath is validated above
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var configs []clientConfig
	if err := json.NewDecoder(file).Decode(&configs); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	fmt.Printf("Registering %d clients from config...\n", len(configs))

	for i, cfg := range configs {
		fmt.Printf("[%d/%d] Registering %s...", i+1, len(configs), cfg.Name)
		client, regErr := cm.registerClient(cfg)
		if regErr != nil {
			fmt.Printf(" FAILED: %v\n", regErr)
			continue
		}
		fmt.Printf(" SUCCESS\n")
		fmt.Printf("  Client ID: %s\n", client.ID)
		fmt.Printf("  Client Secret: %s\n", client.Secret)
		fmt.Println()
	}

	return nil
}

func (cm *clientManager) registerClient(cfg clientConfig) (*registeredClient, error) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"read", "write"}
	}
	if len(cfg.GrantTypes) == 0 {
		cfg.GrantTypes = []string{"client_credentials"}
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := cm.client.Post(
		cm.baseURL+"/oauth/clients",
		"application/json",
		bytes.NewBuffer(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(body)
	}

	var client registeredClient
	if err := json.Unmarshal(body, &client); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &client, nil
}

func (cm *clientManager) getClient(clientID string) (*registeredClient, error) {
	resp, err := cm.client.Get(cm.baseURL + "/oauth/clients/" + clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(body)
	}

	var client registeredClient
	if err := json.Unmarshal(body, &client); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &client, nil
}

func apiError(body []byte) error {
	var errorResp map[string]string
	if json.Unmarshal(body, &errorResp) == nil && errorResp["error"] != "" {
		return fmt.Errorf("API error: %s", errorResp["error"])
	}
	return fmt.Errorf("API error: %s", string(body))
}

func parseStringList(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func printClient(client *registeredClient) {
	fmt.Printf("Client ID: %s\n", client.ID)
	if client.Secret != "" {
		fmt.Printf("Client Secret: %s\n", client.Secret)
	}
	fmt.Printf("Name: %s\n", client.Name)
	fmt.Printf("Redirect URIs: %s\n", strings.Join(client.RedirectURIs, ", "))
	fmt.Printf("Scopes: %s\n", strings.Join(client.Scopes, ", "))
	fmt.Printf("Grant Types: %s\n", strings.Join(client.GrantTypes, ", "))
	fmt.Printf("Active: %v\n", client.IsActive)
	fmt.Printf("Created: %s\n", client.CreatedAt.Format(time.RFC3339))
}
