package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// Pro Color Photography preset.
	leonardoFoodStyle = "7c3f932b-a572-47cb-9b9b-f20211e63b5b"

	leonardoPollInterval = 2 * time.Second
	leonardoMaxAttempts  = 30
)

// LeonardoGenerator starts an asynchronous generation job and polls its
// status endpoint until the hosted image URL is ready.
type LeonardoGenerator struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	// PollInterval overrides the fixed 2s wait between polls; for tests.
	PollInterval time.Duration
}

// NewLeonardoGenerator creates a generator for the given API key.
func NewLeonardoGenerator(apiKey string) *LeonardoGenerator {
	return &LeonardoGenerator{
		BaseURL: "https://cloud.leonardo.ai/api/rest",
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type leonardoCreateReq struct {
	Model      string             `json:"model"`
	Parameters leonardoParameters `json:"parameters"`
	Public     bool               `json:"public"`
}

type leonardoParameters struct {
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	Prompt        string   `json:"prompt"`
	Quantity      int      `json:"quantity"`
	StyleIDs      []string `json:"style_ids"`
	PromptEnhance string   `json:"prompt_enhance"`
}

type leonardoCreateResp struct {
	Generate *struct {
		GenerationID string `json:"generationId"`
	} `json:"generate"`
	ID           string `json:"id"`
	GenerationID string `json:"generationId"`
}

type leonardoImage struct {
	URL string `json:"url"`
}

type leonardoGeneration struct {
	Status          string          `json:"status"`
	GeneratedImages []leonardoImage `json:"generated_images"`
	Images          []leonardoImage `json:"images"`
}

type leonardoPollResp struct {
	GenerationsByPK *leonardoGeneration `json:"generations_by_pk"`
	leonardoGeneration
}

// Generate starts a job and polls for the hosted URL. Job failure and poll
// exhaustion both surface as errors; the Augmenter maps them to "no image".
func (l *LeonardoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(l.APIKey) == "" {
		return "", errors.New("leonardo: api key is required")
	}

	generationID, err := l.startGeneration(ctx, prompt)
	if err != nil {
		return "", err
	}
	return l.pollForImage(ctx, generationID)
}

func (l *LeonardoGenerator) startGeneration(ctx context.Context, prompt string) (string, error) {
	b, err := json.Marshal(leonardoCreateReq{
		Model: "gemini-image-2",
		Parameters: leonardoParameters{
			Width:         1376,
			Height:        768,
			Prompt:        prompt,
			Quantity:      1,
			StyleIDs:      []string{leonardoFoodStyle},
			PromptEnhance: "OFF",
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(l.BaseURL, "/") + "/v2/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", fmt.Errorf("leonardo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded leonardoCreateResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}

	generationID := decoded.ID
	if decoded.Generate != nil && decoded.Generate.GenerationID != "" {
		generationID = decoded.Generate.GenerationID
	}
	if generationID == "" {
		generationID = decoded.GenerationID
	}
	if generationID == "" {
		return "", errors.New("leonardo: no generation id returned")
	}
	return generationID, nil
}

func (l *LeonardoGenerator) pollForImage(ctx context.Context, generationID string) (string, error) {
	interval := l.PollInterval
	if interval <= 0 {
		interval = leonardoPollInterval
	}
	pollURL := fmt.Sprintf("%s/v1/generations/%s", strings.TrimRight(l.BaseURL, "/"), generationID)

	for attempt := 0; attempt < leonardoMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		gen, err := l.fetchGeneration(ctx, pollURL)
		if err != nil {
			slog.Warn("leonardo poll failed", "attempt", attempt+1, "error", err)
			continue
		}

		switch gen.Status {
		case "COMPLETE":
			images := gen.GeneratedImages
			if len(images) == 0 {
				images = gen.Images
			}
			if len(images) > 0 && images[0].URL != "" {
				return images[0].URL, nil
			}
			return "", errors.New("leonardo: generation complete but no images")
		case "FAILED":
			return "", errors.New("leonardo: generation failed")
		}
	}
	return "", fmt.Errorf("leonardo: generation timed out after %d attempts", leonardoMaxAttempts)
}

func (l *LeonardoGenerator) fetchGeneration(ctx context.Context, pollURL string) (*leonardoGeneration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.APIKey)

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("leonardo: poll status %d", resp.StatusCode)
	}

	var decoded leonardoPollResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.GenerationsByPK != nil {
		return decoded.GenerationsByPK, nil
	}
	return &decoded.leonardoGeneration, nil
}
