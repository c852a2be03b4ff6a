// Package origin decides which window origins a frame will accept messages
// from.
//
// Two lists are consulted. Built-in host patterns apply to https origins only.
// Additional patterns carry their own scheme ("http://localhost:3000") and are
// checked first, so they are how development hosts get in. When neither list
// matches and a remote list is configured, the remote list is fetched (or read
// from cache) and the origin is checked against it.
package origin

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
)

// ListSource supplies host patterns fetched from outside the process.
type ListSource interface {
	List(ctx context.Context) []string
}

type Validator struct {
	mu         sync.RWMutex
	builtin    []string
	additional []string
	remote     ListSource
	log        *slog.Logger
}

// NewValidator builds a validator over builtin https host patterns. remote may
// be nil.
func NewValidator(builtin []string, remote ListSource, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		builtin: append([]string(nil), builtin...),
		remote:  remote,
		log:     logger.With("component", "origin"),
	}
}

// SetAdditional replaces the caller supplied patterns. Patterns without a
// scheme are ignored.
func (v *Validator) SetAdditional(patterns []string) {
	kept := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !IsValidPattern(p) {
			v.log.Warn("ignoring additional origin without scheme", "pattern", p)
			continue
		}
		kept = append(kept, p)
	}
	v.mu.Lock()
	v.additional = kept
	v.mu.Unlock()
}

func (v *Validator) Additional() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.additional...)
}

// Validate reports whether messages from origin may be processed.
func (v *Validator) Validate(ctx context.Context, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" {
		v.log.Debug("origin rejected: unparseable", "origin", origin)
		return false
	}

	v.mu.RLock()
	builtin, additional := v.builtin, v.additional
	v.mu.RUnlock()

	if v.matchList(u, builtin, additional) {
		return true
	}
	if v.remote == nil {
		v.log.Debug("origin rejected", "origin", origin)
		return false
	}

	v.log.Debug("origin not in local list, consulting remote list", "origin", origin)
	if v.matchList(u, v.remote.List(ctx), additional) {
		return true
	}
	v.log.Debug("origin rejected", "origin", origin, "additional", additional)
	return false
}

func (v *Validator) matchList(u *url.URL, hosts, additional []string) bool {
	for _, p := range additional {
		if matchFull(p, u) {
			return true
		}
	}
	if u.Scheme != "https" {
		return false
	}
	for _, p := range hosts {
		if MatchHost(p, u.Host) {
			return true
		}
	}
	return false
}
