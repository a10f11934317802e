package updateagent

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// poolWidth caps how many scripts of the same host are checked concurrently.
const poolWidth = 2

// defaultHostKey buckets scripts whose update URL has no usable hostname.
const defaultHostKey = "default"

// hostKey derives the partition key for a script's update URL. Empty,
// relative or unparseable URLs map to the default bucket; this never fails.
func hostKey(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return defaultHostKey
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Hostname() == "" {
		return defaultHostKey
	}
	return parsed.Hostname()
}

// poolEntry is the transient tuple carried through one check run.
type poolEntry struct {
	id     int64
	script *Script
	urls   UpdateURLs
}

// hostBuckets maps a host key to its ordered sequence of pools.
type hostBuckets map[string][][]poolEntry

// buildHostBuckets partitions entries by host key, appending each entry to
// the last pool of its bucket and opening a new pool once the width is
// reached. The relative order of entries within a host is preserved across
// pool boundaries.
func buildHostBuckets(entries []poolEntry) hostBuckets {
	buckets := make(hostBuckets)
	for _, entry := range entries {
		key := hostKey(entry.urls.Update)
		pools := buckets[key]
		if len(pools) == 0 || len(pools[len(pools)-1]) >= poolWidth {
			pools = append(pools, make([]poolEntry, 0, poolWidth))
		}
		pools[len(pools)-1] = append(pools[len(pools)-1], entry)
		buckets[key] = pools
	}
	return buckets
}

// runBuckets executes every host bucket concurrently and flattens their
// per-script outcomes in host completion order.
func (c *Checker) runBuckets(ctx context.Context, buckets hostBuckets) []*Outcome {
	var (
		mu       sync.Mutex
		outcomes []*Outcome
		group    errgroup.Group
	)
	for host, pools := range buckets {
		host, pools := host, pools
		group.Go(func() error {
			results := c.runHostPools(ctx, host, pools)
			mu.Lock()
			outcomes = append(outcomes, results...)
			mu.Unlock()
			return nil
		})
	}
	// Host units never return errors; per-script failures become outcomes.
	_ = group.Wait()
	return outcomes
}

// runHostPools iterates one host's pools strictly in order: each pool's
// scripts run concurrently and the next pool starts only once the previous
// one has fully settled. An empty pool stops the chain.
func (c *Checker) runHostPools(ctx context.Context, host string, pools [][]poolEntry) []*Outcome {
	outcomes := make([]*Outcome, 0, len(pools)*poolWidth)
	for i, pool := range pools {
		if len(pool) == 0 {
			log.Debug().Str("host", host).Int("pool", i).Msg("empty pool, stopping host chain")
			break
		}
		results := make([]*Outcome, len(pool))
		var wg sync.WaitGroup
		for j, entry := range pool {
			wg.Add(1)
			go func(j int, entry poolEntry) {
				defer wg.Done()
				results[j] = c.checkScript(ctx, entry)
			}(j, entry)
		}
		wg.Wait()
		outcomes = append(outcomes, results...)
	}
	log.Debug().Str("host", host).Int("pools", len(pools)).Msg("host update pools settled")
	return outcomes
}
