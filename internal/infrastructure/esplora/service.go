package esplora

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/utils"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCacheTTL = 2 * time.Second
	retryInterval   = 100 * time.Millisecond
	maxAttempts     = 3
)

type Option func(*service)

// WithCacheTTL sets for how long a fetched tip height is served from memory.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.ttl = ttl
	}
}

type service struct {
	baseUrl string
	client  *http.Client
	ttl     time.Duration

	mu        sync.Mutex
	height    uint32
	fetchedAt time.Time
}

// NewService returns a chain height source backed by an esplora REST API.
// Server errors are retried a few times before giving up.
func NewService(esploraURL string, opts ...Option) ports.ChainInfo {
	s := &service{
		baseUrl: strings.TrimRight(esploraURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		ttl:     defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) GetBlockHeight(ctx context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.ttl {
		return s.height, nil
	}

	var (
		height  uint32
		lastErr error
	)
	err := utils.RetryWithBackoff(ctx, utils.Backoff{
		Interval:    retryInterval,
		Factor:      2,
		MaxAttempts: maxAttempts,
	}, func(ctx context.Context) (bool, error) {
		h, retry, err := s.fetchTipHeight(ctx)
		if err == nil {
			height = h
			return true, nil
		}
		if !retry {
			return false, err
		}
		log.WithError(err).Debug("esplora: retrying tip height")
		lastErr = err
		return false, nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrMaxAttempts) && lastErr != nil {
			return 0, lastErr
		}
		return 0, err
	}

	if height < s.height {
		log.Warnf("esplora: tip height went back from %d to %d", s.height, height)
	}
	s.height = height
	s.fetchedAt = time.Now()
	return height, nil
}

// fetchTipHeight also reports whether a failed request is worth retrying.
func (s *service) fetchTipHeight(ctx context.Context) (uint32, bool, error) {
	url := s.baseUrl + "/blocks/tip/height"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, true, fmt.Errorf("get height: %w", err)
	}
	// nolint
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, true, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		return 0, resp.StatusCode >= http.StatusInternalServerError, err
	}

	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parse height: %w", err)
	}
	return uint32(n), false, nil
}
