package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	fallbackTitle    = "Demo Song"
	fallbackAnswer   = "Demo Album"
	fallbackAudioURL = "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"
	fallbackImageURL = "https://via.placeholder.com/300x300?text=Demo+Album"
	missingImageURL  = "https://via.placeholder.com/300x300?text=No+Image"
)

// clue holds everything one round needs: the audio to play, the answer to
// match, and the reveal metadata.
type clue struct {
	Title      string
	Answer     string
	PreviewURL string
	Image      string
}

// fallbackClue is substituted whenever the catalogue or provider cannot
// supply a real song, so a round can always start.
func fallbackClue() clue {
	return clue{
		Title:      fallbackTitle,
		Answer:     fallbackAnswer,
		PreviewURL: fallbackAudioURL,
		Image:      fallbackImageURL,
	}
}

// songCandidate is one playable song extracted from a provider album.
type songCandidate struct {
	title      string
	previewURL string
	image      string
}

// clueProvider looks up playable songs for an album title.
type clueProvider interface {
	findSongs(ctx context.Context, album string) ([]songCandidate, error)
}

// clueSource picks each round's clue: a random catalogue title resolved
// through the provider.
type clueSource struct {
	titles   titleStore
	provider clueProvider
}

func newClueSource(titles titleStore, provider clueProvider) *clueSource {
	return &clueSource{
		titles:   titles,
		provider: provider,
	}
}

// next never fails: the whole lookup shares one clue-timeout deadline, and
// any catalogue or provider error yields the demo clue.
func (s *clueSource) next(ctx context.Context, cfg *Config) clue {
	ctx, cancel := context.WithTimeout(ctx, cfg.clueTimeout)
	defer cancel()

	album, err := s.titles.randomTitle(ctx)
	if err != nil {
		logf(cfg, "CLUES: No album title available (%v), using demo clue", err)

		return fallbackClue()
	}

	candidates, err := s.provider.findSongs(ctx, album)
	if err != nil {
		logf(cfg, "CLUES: Lookup for %q failed (%v), using demo clue", album, err)

		return fallbackClue()
	}
	if len(candidates) == 0 {
		logf(cfg, "CLUES: No playable songs for %q, using demo clue", album)

		return fallbackClue()
	}

	chosen := candidates[randomIndex(len(candidates))]

	image := chosen.image
	if image == "" {
		image = missingImageURL
	}

	return clue{
		Title:      chosen.title,
		Answer:     album,
		PreviewURL: chosen.previewURL,
		Image:      image,
	}
}

// saavnProvider resolves album titles against a saavn.dev-compatible API.
type saavnProvider struct {
	baseURL string
	client  *http.Client
}

func newSaavnProvider(cfg *Config) *saavnProvider {
	return &saavnProvider{
		baseURL: strings.TrimRight(cfg.clueAPI, "/"),
		client: &http.Client{
			Timeout: cfg.clueTimeout,
		},
	}
}

type saavnLink struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

type saavnSong struct {
	Name        string      `json:"name"`
	DownloadURL []saavnLink `json:"downloadUrl"`
	Image       []saavnLink `json:"image"`
}

type saavnSearchResponse struct {
	Data struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	} `json:"data"`
}

type saavnAlbumResponse struct {
	Data struct {
		Songs []saavnSong `json:"songs"`
	} `json:"data"`
}

// findSongs searches for the album, then extracts every song with a
// playable audio URL from the first match.
func (p *saavnProvider) findSongs(ctx context.Context, album string) ([]songCandidate, error) {
	album = sanitizeText(album)
	if album == "" {
		return nil, nil
	}

	var search saavnSearchResponse

	query := url.Values{
		"query": {album},
		"limit": {"1"},
	}
	if err := p.getJSON(ctx, "/search/albums?"+query.Encode(), &search); err != nil {
		return nil, fmt.Errorf("search albums: %w", err)
	}
	if len(search.Data.Results) == 0 || search.Data.Results[0].ID == "" {
		return nil, nil
	}

	var detail saavnAlbumResponse

	query = url.Values{
		"id": {search.Data.Results[0].ID},
	}
	if err := p.getJSON(ctx, "/albums?"+query.Encode(), &detail); err != nil {
		return nil, fmt.Errorf("fetch album: %w", err)
	}

	candidates := make([]songCandidate, 0, len(detail.Data.Songs))

	for _, song := range detail.Data.Songs {
		audio := bestLink(song.DownloadURL, "320kbps")
		if audio == "" {
			continue
		}

		title := sanitizeText(song.Name)
		if title == "" {
			title = "Unknown"
		}

		candidates = append(candidates, songCandidate{
			title:      title,
			previewURL: audio,
			image:      bestLink(song.Image, "500x500"),
		})
	}

	return candidates, nil
}

func (p *saavnProvider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// bestLink returns the URL matching the preferred quality, or the first
// valid URL otherwise.
func bestLink(links []saavnLink, quality string) string {
	for _, link := range links {
		if link.Quality == quality && validURL(link.URL) {
			return link.URL
		}
	}

	for _, link := range links {
		if validURL(link.URL) {
			return link.URL
		}
	}

	return ""
}
