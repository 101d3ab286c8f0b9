package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the gateway reports the document does not
// exist. Callers distinguish it from transient fetch failures.
var ErrNotFound = errors.New("document not found")

const (
	defaultGateway   = "https://ipfs.io"
	defaultTimeout   = 30 * time.Second
	defaultCacheSize = 3
)

// DistributionLog is a rewards distribution report published off-chain.
// Operators maps node operator id to the operator's validator report.
type DistributionLog struct {
	Operators map[string]OperatorReport `json:"operators"`
}

// OperatorReport holds per-validator data for one node operator.
type OperatorReport struct {
	Validators map[string]ValidatorReport `json:"validators"`
}

// ValidatorReport holds the fields the bot cares about for one validator.
type ValidatorReport struct {
	Strikes int `json:"strikes"`
}

// OperatorIDs returns every operator id in the document, numerically then
// lexicographically sorted.
func (d *DistributionLog) OperatorIDs() []string {
	ids := make([]string, 0, len(d.Operators))
	for id := range d.Operators {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// StrikedValidators returns the ids of an operator's validators with at
// least one strike, numerically then lexicographically sorted.
func (d *DistributionLog) StrikedValidators(opID string) []string {
	report, ok := d.Operators[opID]
	if !ok {
		return nil
	}
	var ids []string
	for id, v := range report.Validators {
		if v.Strikes > 0 {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

// sortIDs orders numeric ids ascending before non-numeric ids, which sort
// lexicographically among themselves.
func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.ParseUint(ids[i], 10, 64)
		b, berr := strconv.ParseUint(ids[j], 10, 64)
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

// Config holds fetcher configuration.
type Config struct {
	Gateway   string
	Timeout   time.Duration
	CacheSize int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		Gateway:   defaultGateway,
		Timeout:   defaultTimeout,
		CacheSize: defaultCacheSize,
	}
}

// Fetcher retrieves distribution documents from an IPFS HTTP gateway,
// caching decoded documents per CID in a small LRU.
type Fetcher struct {
	gateway string
	client  *http.Client
	cache   *lru.Cache[string, *DistributionLog]
	logger  *zap.Logger
}

// NewFetcher creates a fetcher. Zero-valued config fields fall back to
// defaults.
func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Gateway == "" {
		cfg.Gateway = defaultGateway
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, *DistributionLog](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}

	return &Fetcher{
		gateway: strings.TrimRight(cfg.Gateway, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		logger:  logger.With(zap.String("component", "ipfs")),
	}, nil
}

// Distribution fetches and decodes the distribution document for a CID.
// Repeated calls with the same CID are served from the cache.
func (f *Fetcher) Distribution(ctx context.Context, cid string) (*DistributionLog, error) {
	if cid == "" {
		return nil, fmt.Errorf("empty cid")
	}

	if doc, ok := f.cache.Get(cid); ok {
		cacheHitsTotal.Inc()
		return doc, nil
	}

	doc, err := f.fetch(ctx, cid)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	fetchesTotal.WithLabelValues("ok").Inc()

	f.cache.Add(cid, doc)
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, cid string) (*DistributionLog, error) {
	url := f.gateway + "/ipfs/" + cid

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", cid, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	doc, err := decodeDistribution(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", cid, err)
	}

	f.logger.Debug("fetched distribution document",
		zap.String("cid", cid), zap.Int("operators", len(doc.Operators)))
	return doc, nil
}

// decodeDistribution accepts either a single document or a list of
// documents and merges the latter into one.
func decodeDistribution(data []byte) (*DistributionLog, error) {
	var docs []DistributionLog
	if err := json.Unmarshal(data, &docs); err != nil {
		var single DistributionLog
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, err
		}
		docs = []DistributionLog{single}
	}

	merged := &DistributionLog{Operators: make(map[string]OperatorReport)}
	for _, doc := range docs {
		for opID, report := range doc.Operators {
			existing, ok := merged.Operators[opID]
			if !ok {
				merged.Operators[opID] = report
				continue
			}
			if existing.Validators == nil {
				existing.Validators = make(map[string]ValidatorReport)
			}
			for valID, v := range report.Validators {
				existing.Validators[valID] = v
			}
			merged.Operators[opID] = existing
		}
	}
	return merged, nil
}
