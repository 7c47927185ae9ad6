// Package metadata resolves playlist contents and per-video stream formats
// against the platform's innertube API.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytsnap/ytsnap/internal/domain"
)

const defaultBaseURL = "https://www.youtube.com"

// Config tunes the metadata client.
type Config struct {
	// BaseURL overrides the API origin; empty means the real platform.
	BaseURL string
	// Timeout bounds each metadata request end to end.
	Timeout time.Duration
	// RequestsPerSecond paces API calls across all workers. Zero disables
	// pacing.
	RequestsPerSecond float64
}

// Client talks to the innertube API. Playlist browsing goes out on the
// client's own connection; per-video resolution accepts the caller's
// transport, because stream URLs are minted for the egress IP that resolves
// them and must be fetched from that same egress.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeout:    timeout,
		limiter:    limiter,
		logger:     logger,
	}
}

// ResolveVideo fetches the playable stream formats for one video, sending
// the player request over transport (nil means the client's own connection).
// Only formats carrying a direct URL are returned; cipher-protected variants
// are skipped because the Android client response normally carries plain
// URLs.
func (c *Client) ResolveVideo(ctx context.Context, id domain.VideoID, transport http.RoundTripper) ([]domain.StreamFormat, error) {
	if _, err := domain.ParseVideoRef(string(id)); err != nil {
		return nil, err
	}

	body, err := c.postJSON(ctx, playerPath, playerRequest{
		Context: androidContext(),
		VideoID: string(id),
	}, transport)
	if err != nil {
		return nil, err
	}

	var resp playerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewResolutionError(string(id), "malformed player response", err)
	}

	if resp.PlayabilityStatus == nil {
		return nil, domain.NewResolutionError(string(id), "player response missing playability status", nil)
	}
	if resp.PlayabilityStatus.Status != "OK" {
		reason := resp.PlayabilityStatus.Reason
		if reason == "" {
			reason = resp.PlayabilityStatus.Status
		}
		return nil, domain.NewResolutionError(string(id), "video not playable: "+reason, nil)
	}
	if resp.StreamingData == nil {
		return nil, domain.NewResolutionError(string(id), "player response missing streaming data", nil)
	}

	var formats []domain.StreamFormat
	for _, raw := range resp.StreamingData.Formats {
		if f, ok := convertFormat(raw, true); ok {
			formats = append(formats, f)
		}
	}
	for _, raw := range resp.StreamingData.AdaptiveFormats {
		if f, ok := convertFormat(raw, false); ok {
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, domain.NewResolutionError(string(id), "no directly downloadable formats", domain.ErrNoFormats)
	}

	c.logger.Debug("resolved video formats", "video_id", id, "formats", len(formats))
	return formats, nil
}

// convertFormat maps one innertube format entry to the domain type.
// Progressive entries (the muxed formats list) always carry both tracks;
// adaptive entries carry exactly one.
func convertFormat(raw rawFormat, progressive bool) (domain.StreamFormat, bool) {
	if raw.URL == "" {
		return domain.StreamFormat{}, false
	}
	f := domain.StreamFormat{
		Itag:         raw.Itag,
		QualityLabel: raw.QualityLabel,
		MimeType:     raw.MimeType,
		URL:          raw.URL,
	}
	if raw.QualityLabel == "" {
		f.QualityLabel = raw.Quality
	}
	if raw.ContentLength != "" {
		if n, err := strconv.ParseInt(raw.ContentLength, 10, 64); err == nil {
			f.ContentLength = n
		}
	}
	if progressive {
		f.HasVideo = true
		f.HasAudio = true
	} else {
		f.HasVideo = strings.HasPrefix(raw.MimeType, "video/")
		f.HasAudio = strings.HasPrefix(raw.MimeType, "audio/") || raw.AudioQuality != ""
	}
	return f, true
}

// ResolvePlaylist fetches the full ordered item list for a playlist,
// following continuation tokens until the listing is exhausted.
func (c *Client) ResolvePlaylist(ctx context.Context, ref domain.PlaylistRef) (*domain.PlaylistInfo, error) {
	body, err := c.postJSON(ctx, browsePath, browseRequest{
		Context:  webContext(),
		BrowseID: "VL" + ref.ID,
	}, nil)
	if err != nil {
		return nil, err
	}

	var resp browseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewResolutionError(ref.ID, "malformed browse response", err)
	}

	info := &domain.PlaylistInfo{Ref: ref}
	fillHeader(info, resp.Header)

	entries, err := firstPageEntries(&resp)
	if err != nil {
		return nil, domain.NewResolutionError(ref.ID, err.Error(), nil)
	}

	token := collectEntries(info, entries)
	for token != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := c.postJSON(ctx, browsePath, browseRequest{
			Context:      webContext(),
			Continuation: token,
		}, nil)
		if err != nil {
			return nil, err
		}
		var page browseResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, domain.NewResolutionError(ref.ID, "malformed continuation response", err)
		}
		entries, err := continuationEntries(&page)
		if err != nil {
			return nil, domain.NewResolutionError(ref.ID, err.Error(), nil)
		}
		token = collectEntries(info, entries)
	}

	if len(info.Videos) == 0 {
		return nil, domain.NewResolutionError(ref.ID, "playlist is empty, private, or unavailable", nil)
	}
	info.VideoCount = len(info.Videos)

	c.logger.Info("resolved playlist",
		"playlist_id", ref.ID,
		"title", info.Title,
		"videos", len(info.Videos))
	return info, nil
}

// fillHeader extracts the playlist title and channel when present. The
// header renderer location shifts across frontend versions; missing fields
// degrade to empty strings rather than failing the resolution.
func fillHeader(info *domain.PlaylistInfo, header *browseHeader) {
	if header == nil {
		return
	}
	h := header.PlaylistHeaderRenderer
	if h == nil && header.PageHeaderRenderer != nil {
		h = header.PageHeaderRenderer.Content.PlaylistHeaderRenderer
	}
	if h == nil {
		return
	}
	info.Title = h.Title.String()
	info.Author = h.OwnerText.String()
	if info.Author == "" {
		info.Author = h.Subtitle.String()
	}
}

// firstPageEntries walks the initial browse response down to the playlist
// video list of the selected tab.
func firstPageEntries(resp *browseResponse) ([]playlistEntry, error) {
	if resp.Contents == nil {
		return nil, fmt.Errorf("browse response missing contents")
	}
	for _, tab := range resp.Contents.TwoColumnBrowseResultsRenderer.Tabs {
		if tab.TabRenderer == nil {
			continue
		}
		for _, section := range tab.TabRenderer.Content.SectionListRenderer.Contents {
			if section.ItemSectionRenderer == nil {
				continue
			}
			for _, item := range section.ItemSectionRenderer.Contents {
				if item.PlaylistVideoListRenderer != nil {
					return item.PlaylistVideoListRenderer.Contents, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("browse response missing playlist video list")
}

func continuationEntries(resp *browseResponse) ([]playlistEntry, error) {
	if len(resp.OnResponseReceivedActions) == 0 {
		return nil, fmt.Errorf("continuation response missing received actions")
	}
	action := resp.OnResponseReceivedActions[0].AppendContinuationItemsAction
	if action == nil {
		return nil, fmt.Errorf("continuation response missing append action")
	}
	return action.ContinuationItems, nil
}

// collectEntries appends video rows to info and returns the continuation
// token if one closes the page, or "" when the listing is exhausted.
func collectEntries(info *domain.PlaylistInfo, entries []playlistEntry) string {
	var token string
	for _, entry := range entries {
		if v := entry.PlaylistVideoRenderer; v != nil && v.VideoID != "" {
			info.Videos = append(info.Videos, domain.PlaylistItem{
				Video: domain.VideoRef{ID: domain.VideoID(v.VideoID)},
				Title: v.Title.String(),
			})
			continue
		}
		if cr := entry.ContinuationItemRenderer; cr != nil {
			token = cr.ContinuationEndpoint.ContinuationCommand.Token
		}
	}
	return token
}

// postJSON sends one innertube request and returns the response body. A
// non-nil rt routes the call through that transport. Requests are paced
// through the shared limiter so metadata resolution from many workers does
// not hammer the API.
func (c *Client) postJSON(ctx context.Context, path string, payload any, rt http.RoundTripper) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode innertube request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build innertube request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Origin", defaultBaseURL)
	req.Header.Set("Referer", defaultBaseURL+"/")

	client := c.httpClient
	if rt != nil {
		client = &http.Client{Transport: rt, Timeout: c.timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("innertube %s: %w", path, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("innertube %s: %w", path, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientError(fmt.Errorf("innertube %s: status %d", path, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("innertube %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("read innertube response: %w", err))
	}
	return body, nil
}
