// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/epgd/internal/cache"
	"github.com/ManuGH/epgd/internal/epg"
	"github.com/ManuGH/epgd/internal/fetch"
	xglog "github.com/ManuGH/epgd/internal/log"
)

// maxRequestBody bounds fetch request payloads; channel lists are small.
const maxRequestBody = 1 << 20

// fetchRequest is the JSON payload of POST /api/v1/fetch.
type fetchRequest struct {
	Site     string        `json:"site,omitempty"`
	Channels []epg.Channel `json:"channels,omitempty"`

	Days           int    `json:"days,omitempty"`
	Lang           string `json:"lang,omitempty"`
	MaxConnections int    `json:"max_connections,omitempty"`
	TimeoutMS      int    `json:"timeout_ms,omitempty"`
	DelayMS        int    `json:"delay_ms,omitempty"`
	Gzip           bool   `json:"gzip,omitempty"`

	// OutputFormat selects the response shape: "xml" (default) streams the
	// guide file, "json" returns metadata referencing the cached file.
	OutputFormat string `json:"output_format,omitempty"`
}

// dockerFetchRequest is the JSON payload of POST /api/v1/fetch-docker. Exactly
// one of Channels or ChannelsXML supplies the channel list.
type dockerFetchRequest struct {
	Channels    []epg.Channel `json:"channels,omitempty"`
	ChannelsXML string        `json:"channels_xml,omitempty"`

	Days           int  `json:"days,omitempty"`
	MaxConnections int  `json:"max_connections,omitempty"`
	TimeoutMS      int  `json:"timeout_ms,omitempty"`
	DelayMS        int  `json:"delay_ms,omitempty"`
	Gzip           bool `json:"gzip,omitempty"`

	OutputFormat string `json:"output_format,omitempty"`
}

type fetchResponse struct {
	Status    string    `json:"status"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var body fetchRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := fetch.Request{
		Options: fetch.Options{
			Days:           body.Days,
			Lang:           body.Lang,
			MaxConnections: body.MaxConnections,
			TimeoutMS:      body.TimeoutMS,
			DelayMS:        body.DelayMS,
			Gzip:           body.Gzip,
		},
	}
	if req.Options.MaxConnections == 0 {
		req.Options.MaxConnections = APIDefaultMaxConnections
	}
	switch {
	case body.Site != "" && len(body.Channels) > 0:
		writeError(w, http.StatusBadRequest, errors.New("site and channels are mutually exclusive"))
		return
	case body.Site != "":
		req.Source = fetch.SiteSource(body.Site)
	default:
		req.Source = fetch.ChannelSource(body.Channels)
	}

	path, err := s.fetcher.Fetch(r.Context(), req)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	s.respondWithArtifact(w, r, path, body.OutputFormat)
}

func (s *Server) handleFetchDocker(w http.ResponseWriter, r *http.Request) {
	var body dockerFetchRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body.Channels) > 0 && body.ChannelsXML != "" {
		writeError(w, http.StatusBadRequest, errors.New("channels and channels_xml are mutually exclusive"))
		return
	}

	opts := fetch.Options{
		Days:           body.Days,
		MaxConnections: body.MaxConnections,
		TimeoutMS:      body.TimeoutMS,
		DelayMS:        body.DelayMS,
		Gzip:           body.Gzip,
	}
	if opts.MaxConnections == 0 {
		opts.MaxConnections = APIDefaultMaxConnections
	}

	var (
		path string
		err  error
	)
	if body.ChannelsXML != "" {
		path, err = s.fetcher.FetchContainerRaw(r.Context(), []byte(body.ChannelsXML), opts)
	} else {
		path, err = s.fetcher.FetchContainer(r.Context(), fetch.Request{
			Source:  fetch.ChannelSource(body.Channels),
			Options: opts,
		})
	}
	if err != nil {
		writeFetchError(w, err)
		return
	}
	s.respondWithArtifact(w, r, path, body.OutputFormat)
}

// respondWithArtifact either streams the cached guide file or returns its
// metadata, depending on the requested output format.
func (s *Server) respondWithArtifact(w http.ResponseWriter, r *http.Request, path, format string) {
	filename := filepath.Base(path)

	if strings.EqualFold(format, "json") {
		entry, err := s.cacheEntry(filename)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, fetchResponse{
			Status:    "success",
			Filename:  entry.Filename,
			SizeBytes: entry.Size,
			Timestamp: entry.Created,
		})
		return
	}

	serveGuide(w, r, path, filename)
}

func (s *Server) cacheEntry(filename string) (cache.Entry, error) {
	entries, err := s.store.List()
	if err != nil {
		return cache.Entry{}, err
	}
	for _, e := range entries {
		if e.Filename == filename {
			return e, nil
		}
	}
	return cache.Entry{}, fmt.Errorf("published file %s not listed", filename)
}

// serveGuide streams a cached guide file with download headers.
func serveGuide(w http.ResponseWriter, r *http.Request, path, filename string) {
	if strings.HasSuffix(filename, ".gz") {
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", `attachment; filename="guide.xml.gz"`)
	} else {
		w.Header().Set("Content-Type", "application/xml")
		w.Header().Set("Content-Disposition", `attachment; filename="guide.xml"`)
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sites": epg.Sites()})
}

func (s *Server) handleCacheList(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": entries, "count": len(entries)})
}

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := s.store.Resolve(filename)
	if err != nil {
		writeNotFound(w)
		return
	}
	serveGuide(w, r, path, filename)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.Clear()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	apiLog := xglog.WithComponentFromContext(r.Context(), "api")
	apiLog.Info().
		Str("event", "cache.cleared").
		Int("removed", removed).
		Msg("cache cleared via API")
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "removed": removed})
}

// decodeBody parses a JSON request body strictly, rejecting unknown fields
// and oversized payloads.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
