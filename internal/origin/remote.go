package origin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/HsiangNianian/framelink/internal/store"
)

const (
	DefaultFetchTimeout = 1500 * time.Millisecond
	DefaultCacheTTL     = 24 * time.Hour
)

// RemoteList fetches the host allow-list from an HTTP endpoint serving
// {"validOrigins": ["host", "*.host", ...]}. Results are cached in Store, or
// in memory when Store is nil. Any fetch failure yields the fallback list,
// which is cached as well, even when empty.
type RemoteList struct {
	URL      string
	Fallback []string
	Timeout  time.Duration
	TTL      time.Duration
	Client   *http.Client
	Store    store.Store
	Log      *slog.Logger

	mu    sync.Mutex
	local store.Store
}

type remoteListBody struct {
	ValidOrigins []string `json:"validOrigins"`
}

func (r *RemoteList) List(ctx context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.Log
	if logger == nil {
		logger = slog.Default()
	}

	st := r.Store
	if st == nil {
		if r.local == nil {
			r.local = store.NewMemoryStore()
		}
		st = r.local
	}

	cached, ok, err := st.GetValidOrigins(ctx)
	if err != nil {
		logger.Warn("read cached origin list failed", "err", err)
	} else if ok {
		return cached
	}

	list, err := r.fetch(ctx)
	if err != nil {
		logger.Warn("origin list fetch failed, using fallback list", "url", r.URL, "err", err)
		list = append([]string{}, r.Fallback...)
	} else {
		logger.Debug("fetched origin list", "url", r.URL, "count", len(list))
	}

	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if err := st.SetValidOrigins(ctx, list, ttl); err != nil {
		logger.Warn("cache origin list failed", "err", err)
	}
	return list
}

func (r *RemoteList) fetch(ctx context.Context) ([]string, error) {
	if r.URL == "" {
		return nil, errors.New("no origin list url configured")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body remoteListBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode origin list: %w", err)
	}
	if body.ValidOrigins == nil {
		return nil, errors.New("origin list missing validOrigins")
	}
	for _, o := range body.ValidOrigins {
		if _, err := url.Parse("https://" + o); err != nil {
			return nil, fmt.Errorf("invalid origin %q in list: %w", o, err)
		}
	}
	return body.ValidOrigins, nil
}
