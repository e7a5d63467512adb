package armory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// APIBaseURL may contain a single %s that is replaced by the region,
	// e.g. "https://%s.api.blizzard.com".
	APIBaseURL string
	Timeout    time.Duration
}

// Asset is one media entry of a character, e.g. key "avatar".
type Asset struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CharacterMedia struct {
	Assets []Asset `json:"assets"`
}

// MediaClient is the external lookup capability.
type MediaClient interface {
	GetCharacterMedia(ctx context.Context, region, locale, realmSlug, characterName string) (*CharacterMedia, error)
}

// Client talks to the Battle.net profile API with a client-credentials
// token that oauth2 caches and refreshes.
type Client struct {
	apiBaseURL string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	base := &http.Client{Timeout: cfg.Timeout}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	httpClient := cc.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		apiBaseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) baseURL(region string) string {
	if strings.Contains(c.apiBaseURL, "%s") {
		return fmt.Sprintf(c.apiBaseURL, region)
	}
	return c.apiBaseURL
}

func (c *Client) GetCharacterMedia(ctx context.Context, region, locale, realmSlug, characterName string) (*CharacterMedia, error) {
	endpoint := fmt.Sprintf("%s/profile/wow/character/%s/%s/character-media",
		c.baseURL(region), url.PathEscape(realmSlug), url.PathEscape(characterName))

	query := url.Values{}
	query.Set("namespace", "profile-"+region)
	query.Set("locale", locale)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("character media request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var media CharacterMedia
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return nil, fmt.Errorf("failed to decode character media: %w", err)
	}
	return &media, nil
}
