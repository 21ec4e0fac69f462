// Package http implements the read-only catalog gateway over a TMDB-style
// REST API. Every response is treated as an immutable snapshot at fetch
// time.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/screenlogapp/screenlog/pkg/model"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the catalog has no entry for a key.
var ErrNotFound = errors.New("not found")

// Gateway is a rate-limited catalog client.
type Gateway struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// New creates a catalog gateway. requestsPerSecond gates outgoing calls
// against the catalog's quota.
func New(baseURL, apiKey string, requestsPerSecond float64) *Gateway {
	return &Gateway{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Details is the canonical metadata snapshot for one media item.
type Details struct {
	MediaID         string          `json:"mediaId"`
	MediaType       model.MediaType `json:"mediaType"`
	Title           string          `json:"title"`
	Overview        string          `json:"overview,omitempty"`
	PosterRef       string          `json:"posterRef,omitempty"`
	BackdropRef     string          `json:"backdropRef,omitempty"`
	RuntimeMinutes  int             `json:"runtimeMinutes,omitempty"`
	Genres          []string        `json:"genres,omitempty"`
	AggregateRating float64         `json:"aggregateRating,omitempty"`
	ReleaseDate     string          `json:"releaseDate,omitempty"`
}

// CastMember is one credited participant.
type CastMember struct {
	Name       string `json:"name"`
	Character  string `json:"character,omitempty"`
	ProfileRef string `json:"profileRef,omitempty"`
}

// Video is a trailer or clip reference.
type Video struct {
	Key  string `json:"key"`
	Site string `json:"site"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Provider is one watch-provider entry for a region.
type Provider struct {
	Name    string `json:"name"`
	LogoRef string `json:"logoRef,omitempty"`
}

// GetDetails fetches canonical metadata for one media item.
func (g *Gateway) GetDetails(ctx context.Context, mediaType model.MediaType, mediaID string) (*Details, error) {
	var raw struct {
		Title        string  `json:"title"`
		Name         string  `json:"name"`
		Overview     string  `json:"overview"`
		PosterPath   string  `json:"poster_path"`
		BackdropPath string  `json:"backdrop_path"`
		Runtime      int     `json:"runtime"`
		VoteAverage  float64 `json:"vote_average"`
		ReleaseDate  string  `json:"release_date"`
		FirstAirDate string  `json:"first_air_date"`
		Genres       []struct {
			Name string `json:"name"`
		} `json:"genres"`
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/%s", apiPath(mediaType), mediaID), nil, &raw); err != nil {
		return nil, err
	}
	d := &Details{
		MediaID:         mediaID,
		MediaType:       mediaType,
		Title:           firstNonEmpty(raw.Title, raw.Name),
		Overview:        raw.Overview,
		PosterRef:       raw.PosterPath,
		BackdropRef:     raw.BackdropPath,
		RuntimeMinutes:  raw.Runtime,
		AggregateRating: raw.VoteAverage,
		ReleaseDate:     firstNonEmpty(raw.ReleaseDate, raw.FirstAirDate),
	}
	for _, gn := range raw.Genres {
		d.Genres = append(d.Genres, gn.Name)
	}
	return d, nil
}

// GetCredits fetches the cast list for one media item.
func (g *Gateway) GetCredits(ctx context.Context, mediaType model.MediaType, mediaID string) ([]CastMember, error) {
	var raw struct {
		Cast []struct {
			Name        string `json:"name"`
			Character   string `json:"character"`
			ProfilePath string `json:"profile_path"`
		} `json:"cast"`
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/%s/credits", apiPath(mediaType), mediaID), nil, &raw); err != nil {
		return nil, err
	}
	cast := make([]CastMember, 0, len(raw.Cast))
	for _, c := range raw.Cast {
		cast = append(cast, CastMember{Name: c.Name, Character: c.Character, ProfileRef: c.ProfilePath})
	}
	return cast, nil
}

// GetVideos fetches trailers and clips for one media item.
func (g *Gateway) GetVideos(ctx context.Context, mediaType model.MediaType, mediaID string) ([]Video, error) {
	var raw struct {
		Results []Video `json:"results"`
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/%s/videos", apiPath(mediaType), mediaID), nil, &raw); err != nil {
		return nil, err
	}
	return raw.Results, nil
}

// GetWatchProviders fetches streaming providers keyed by region.
func (g *Gateway) GetWatchProviders(ctx context.Context, mediaType model.MediaType, mediaID string) (map[string][]Provider, error) {
	var raw struct {
		Results map[string]struct {
			Flatrate []struct {
				ProviderName string `json:"provider_name"`
				LogoPath     string `json:"logo_path"`
			} `json:"flatrate"`
		} `json:"results"`
	}
	if err := g.get(ctx, fmt.Sprintf("/%s/%s/watch/providers", apiPath(mediaType), mediaID), nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]Provider, len(raw.Results))
	for region, entry := range raw.Results {
		providers := make([]Provider, 0, len(entry.Flatrate))
		for _, p := range entry.Flatrate {
			providers = append(providers, Provider{Name: p.ProviderName, LogoRef: p.LogoPath})
		}
		out[region] = providers
	}
	return out, nil
}

// GetRecommendations fetches the catalog's "recommended for this media"
// list.
func (g *Gateway) GetRecommendations(ctx context.Context, mediaType model.MediaType, mediaID string) ([]model.RecommendationCandidate, error) {
	return g.candidateList(ctx, fmt.Sprintf("/%s/%s/recommendations", apiPath(mediaType), mediaID), nil)
}

// Search performs a free-text multi search across movies and series.
func (g *Gateway) Search(ctx context.Context, text string) ([]model.RecommendationCandidate, error) {
	return g.candidateList(ctx, "/search/multi", url.Values{"query": {text}})
}

// Discover queries the catalog by sort order, genre filter and minimum
// aggregate rating.
func (g *Gateway) Discover(ctx context.Context, mediaType model.MediaType, sortBy string, genreIDs []int, minRating float64) ([]model.RecommendationCandidate, error) {
	params := url.Values{}
	if sortBy != "" {
		params.Set("sort_by", sortBy)
	}
	if len(genreIDs) > 0 {
		ids := make([]string, len(genreIDs))
		for i, id := range genreIDs {
			ids[i] = strconv.Itoa(id)
		}
		params.Set("with_genres", strings.Join(ids, ","))
	}
	if minRating > 0 {
		params.Set("vote_average.gte", strconv.FormatFloat(minRating, 'f', 1, 64))
	}
	return g.candidateList(ctx, "/discover/"+apiPath(mediaType), params)
}

type rawCandidate struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Name         string      `json:"name"`
	PosterPath   string      `json:"poster_path"`
	BackdropPath string      `json:"backdrop_path"`
	ReleaseDate  string      `json:"release_date"`
	FirstAirDate string      `json:"first_air_date"`
	VoteAverage  float64     `json:"vote_average"`
	MediaType    string      `json:"media_type"`
}

func (g *Gateway) candidateList(ctx context.Context, path string, params url.Values) ([]model.RecommendationCandidate, error) {
	var raw struct {
		Results []rawCandidate `json:"results"`
	}
	if err := g.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}
	out := make([]model.RecommendationCandidate, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, model.RecommendationCandidate{
			MediaType:       candidateType(r.MediaType),
			MediaID:         r.ID.String(),
			Title:           firstNonEmpty(r.Title, r.Name),
			PosterRef:       r.PosterPath,
			BackdropRef:     r.BackdropPath,
			Year:            yearOf(firstNonEmpty(r.ReleaseDate, r.FirstAirDate)),
			AggregateRating: r.VoteAverage,
		})
	}
	return out, nil
}

func (g *Gateway) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

// apiPath maps the domain media type to the catalog's path segment.
func apiPath(mediaType model.MediaType) string {
	if mediaType == model.MediaTypeSeries {
		return "tv"
	}
	return string(mediaType)
}

// candidateType maps the catalog's media_type to the domain type. A
// missing media_type means the endpoint was already type-scoped, which
// the catalog only does for movies and tv.
func candidateType(raw string) model.MediaType {
	switch raw {
	case "tv":
		return model.MediaTypeSeries
	case "person":
		return model.MediaTypePerson
	case "":
		return model.MediaTypeMovie
	}
	return model.MediaType(raw)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func yearOf(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}
