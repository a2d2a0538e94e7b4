package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/cinebyhub/catalog-sync/pkg/catalog"
	"github.com/cinebyhub/catalog-sync/pkg/client"
)

// DefaultChannelSeeds are well-known network ids looked up on every run in
// addition to those discovered from the TV scan.
var DefaultChannelSeeds = []int64{
	213, 49, 2739, 174, 453, 2552, 2625, 359, 19, 6,
	2, 1, 56, 182, 318, 67, 4, 34, 71, 16,
	// international
	289, 288, 4330, 1024, 510, 247, 2993, 5764, 337, 591,
}

// harvestChannels discovers network ids and fetches their details. TMDB has
// no list endpoint for networks, so ids come from the network references of
// a popularity scan plus the seed list.
func (e *Engine) harvestChannels(ctx context.Context, c catalog.Category, known map[int64]struct{}, res *CategoryResult) [][]catalog.Record {
	var discovered []int64
	for _, d := range e.planner.Plan(c) {
		if ctx.Err() != nil {
			return nil
		}
		// the scan yields shows, not channels, so nothing about it is known
		walked := e.walker.Walk(ctx, d, nil)
		res.Descriptors++
		res.Pages += walked.PagesFetched
		if walked.Err != nil && !errors.Is(walked.Err, client.ErrContextCancelled) && ctx.Err() == nil {
			res.DescriptorFailures++
		}
		for _, show := range walked.Items {
			for _, n := range show.Networks {
				discovered = append(discovered, n.ID)
			}
		}
	}

	ids := channelIDs(discovered, e.config.ChannelSeeds, known)
	e.logger.Debug().
		Str("category", c.Key).
		Int("candidates", len(ids)).
		Msg("Fetching network details")

	batch := make([]catalog.Record, 0, len(ids))
	for _, id := range ids {
		if err := e.pacer.Wait(ctx); err != nil {
			break
		}
		item, err := e.fetcher.GetItem(ctx, fmt.Sprintf("/network/%d", id), nil)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, client.ErrContextCancelled) {
				break
			}
			res.RecordErrors++
			recordErrorsTotal.WithLabelValues(c.Key).Inc()
			e.logger.Warn().
				Err(err).
				Str("category", c.Key).
				Int64("network_id", id).
				Msg("Network lookup failed, skipping")
			continue
		}
		if item.ID == 0 {
			res.RecordErrors++
			recordErrorsTotal.WithLabelValues(c.Key).Inc()
			continue
		}
		batch = append(batch, catalog.NormalizeChannel(item))
	}
	res.Fetched += len(batch)
	return [][]catalog.Record{batch}
}

// channelIDs returns discovered ids then seeds, without zeros, repeats or
// ids in known, preserving first appearance.
func channelIDs(discovered, seeds []int64, known map[int64]struct{}) []int64 {
	seen := make(map[int64]bool, len(discovered)+len(seeds))
	var out []int64
	for _, list := range [][]int64{discovered, seeds} {
		for _, id := range list {
			if id == 0 || seen[id] {
				continue
			}
			seen[id] = true
			if _, ok := known[id]; ok {
				continue
			}
			out = append(out, id)
		}
	}
	return out
}
