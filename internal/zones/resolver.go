// Package zones resolves UGC identifiers to friendly display names via
// the api.weather.gov zones endpoint.
package zones

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.weather.gov"
	userAgent      = "SparkAlerts"
	acceptHeader   = "application/geo+json, application/json"
)

// Resolver looks up zone and county names over HTTPS and memoizes the
// results (including failed lookups) for the life of the process.
type Resolver struct {
	baseURL string
	client  *http.Client

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver builds a resolver with the default 5 second timeout.
func NewResolver() *Resolver {
	return &Resolver{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   make(map[string]string),
	}
}

// NewResolverWithBase is used by tests to point at a local server.
func NewResolverWithBase(baseURL string, client *http.Client) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   make(map[string]string),
	}
}

type zoneProperties struct {
	Properties struct {
		Name  string `json:"name"`
		State string `json:"state"`
	} `json:"properties"`
}

// Resolve returns the display name for a UGC id, or "" when the id is
// unknown or the upstream call fails. Failures never propagate; an
// unresolvable zone simply contributes nothing to areaDesc.
func (r *Resolver) Resolve(ctx context.Context, id string) string {
	r.mu.RLock()
	name, hit := r.cache[id]
	r.mu.RUnlock()
	if hit {
		return name
	}

	name = r.lookup(ctx, id)

	r.mu.Lock()
	r.cache[id] = name
	r.mu.Unlock()
	return name
}

func (r *Resolver) lookup(ctx context.Context, id string) string {
	if len(id) != 6 {
		return ""
	}

	if id[2] == 'C' {
		return r.fetch(ctx, "county", id)
	}
	if name := r.fetch(ctx, "forecast", id); name != "" {
		return name
	}
	return r.fetch(ctx, "fire", id)
}

func (r *Resolver) fetch(ctx context.Context, kind, id string) string {
	url := fmt.Sprintf("%s/zones/%s/%s", r.baseURL, kind, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := r.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("ugc", id).Str("kind", kind).Msg("Zone lookup failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}

	var zone zoneProperties
	if err := json.Unmarshal(body, &zone); err != nil {
		log.Debug().Err(err).Str("ugc", id).Msg("Zone response malformed")
		return ""
	}

	name := strings.TrimSpace(zone.Properties.Name)
	if name == "" {
		return ""
	}
	if kind == "county" && zone.Properties.State != "" {
		return name + ", " + zone.Properties.State
	}
	return name
}

// ResolveAll resolves every id in parallel and joins the non-empty
// names with "; ", preserving input order.
func (r *Resolver) ResolveAll(ctx context.Context, ids []string) string {
	if len(ids) == 0 {
		return ""
	}

	names := make([]string, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			names[i] = r.Resolve(ctx, id)
		}(i, id)
	}
	wg.Wait()

	var kept []string
	for _, name := range names {
		if name != "" {
			kept = append(kept, name)
		}
	}
	return strings.Join(kept, "; ")
}
