// ABOUTME: Unsplash, Pexels and Pixabay search clients
// ABOUTME: Each asks for landscape photos and returns only the first hit

package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/2389/deckbot/internal/config"
)

// ErrMissingKey is returned when a backend is selected without credentials.
var ErrMissingKey = errors.New("image backend API key not configured")

const (
	unsplashURL = "https://api.unsplash.com"
	pexelsURL   = "https://api.pexels.com/v1"
	pixabayURL  = "https://pixabay.com/api/"
)

// NewSearcher returns the searcher selected by cfg.Provider, or nil for "none".
func NewSearcher(cfg config.ImagesConfig) (Searcher, error) {
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderUnsplash:
		return &Unsplash{AccessKey: cfg.Unsplash.APIKey}, nil
	case config.ProviderPexels:
		return &Pexels{APIKey: cfg.Pexels.APIKey}, nil
	case config.ProviderPixabay:
		return &Pixabay{APIKey: cfg.Pixabay.APIKey}, nil
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.Provider)
	}
}

// getJSON performs an authenticated GET and decodes the body into v.
func getJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}
	req.Header.Set("Accept", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// The URL may carry an API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("request failed: %w", urlErr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error: %s (%s)", resp.Status, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func baseOr(base, fallback string) string {
	if base != "" {
		return base
	}
	return fallback
}

// Unsplash searches api.unsplash.com.
type Unsplash struct {
	AccessKey string
	BaseURL   string
	Client    *http.Client
}

// Name implements Searcher.
func (u *Unsplash) Name() string { return config.ProviderUnsplash }

// Search implements Searcher.
func (u *Unsplash) Search(ctx context.Context, query string) (*Photo, error) {
	if u.AccessKey == "" {
		return nil, ErrMissingKey
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")

	var body struct {
		Results []struct {
			URLs struct {
				Regular string `json:"regular"`
			} `json:"urls"`
			User struct {
				Name  string `json:"name"`
				Links struct {
					HTML string `json:"html"`
				} `json:"links"`
			} `json:"user"`
		} `json:"results"`
	}
	header := http.Header{"Authorization": {"Client-ID " + u.AccessKey}}
	endpoint := baseOr(u.BaseURL, unsplashURL) + "/search/photos?" + params.Encode()
	if err := getJSON(ctx, u.Client, endpoint, header, &body); err != nil {
		return nil, fmt.Errorf("unsplash: %w", err)
	}
	if len(body.Results) == 0 || body.Results[0].URLs.Regular == "" {
		return nil, ErrNoResults
	}
	hit := body.Results[0]
	return &Photo{URL: hit.URLs.Regular, Author: hit.User.Name, AuthorURL: hit.User.Links.HTML}, nil
}

// Pexels searches api.pexels.com.
type Pexels struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Name implements Searcher.
func (p *Pexels) Name() string { return config.ProviderPexels }

// Search implements Searcher.
func (p *Pexels) Search(ctx context.Context, query string) (*Photo, error) {
	if p.APIKey == "" {
		return nil, ErrMissingKey
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")

	var body struct {
		Photos []struct {
			Src struct {
				Large string `json:"large"`
			} `json:"src"`
			Photographer    string `json:"photographer"`
			PhotographerURL string `json:"photographer_url"`
		} `json:"photos"`
	}
	header := http.Header{"Authorization": {p.APIKey}}
	endpoint := baseOr(p.BaseURL, pexelsURL) + "/search?" + params.Encode()
	if err := getJSON(ctx, p.Client, endpoint, header, &body); err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}
	if len(body.Photos) == 0 || body.Photos[0].Src.Large == "" {
		return nil, ErrNoResults
	}
	hit := body.Photos[0]
	return &Photo{URL: hit.Src.Large, Author: hit.Photographer, AuthorURL: hit.PhotographerURL}, nil
}

// Pixabay searches pixabay.com. The key travels as a query parameter.
type Pixabay struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Name implements Searcher.
func (p *Pixabay) Name() string { return config.ProviderPixabay }

// Search implements Searcher.
func (p *Pixabay) Search(ctx context.Context, query string) (*Photo, error) {
	if p.APIKey == "" {
		return nil, ErrMissingKey
	}
	params := url.Values{}
	params.Set("key", p.APIKey)
	params.Set("q", query)
	params.Set("image_type", "photo")
	params.Set("orientation", "horizontal")
	params.Set("min_width", "1920")
	params.Set("min_height", "1080")
	params.Set("per_page", "3")
	params.Set("safesearch", "true")

	var body struct {
		Hits []struct {
			LargeImageURL string `json:"largeImageURL"`
			User          string `json:"user"`
			UserID        int64  `json:"user_id"`
		} `json:"hits"`
	}
	endpoint := baseOr(p.BaseURL, pixabayURL) + "?" + params.Encode()
	if err := getJSON(ctx, p.Client, endpoint, nil, &body); err != nil {
		return nil, fmt.Errorf("pixabay: %w", err)
	}
	if len(body.Hits) == 0 || body.Hits[0].LargeImageURL == "" {
		return nil, ErrNoResults
	}
	hit := body.Hits[0]
	return &Photo{
		URL:       hit.LargeImageURL,
		Author:    hit.User,
		AuthorURL: fmt.Sprintf("https://pixabay.com/users/%s-%d/", hit.User, hit.UserID),
	}, nil
}
