// Package pagination walks the page sequence of a TMDB query and keeps only
// items whose id is not already known.
//
// TMDB caps a query at 500 pages of 20 results. The walker requests pages
// one at a time, in order, paced by a ratelimit.Pacer, and stops at the
// first of:
//
//   - the descriptor's page budget or the response's total_pages,
//   - a failed page (results gathered so far are kept),
//   - a page after the first that contains nothing new, when the
//     descriptor declares a stable sort order and the walk is incremental.
//
// Example usage:
//
//	w := pagination.NewWalker(tmdbClient, ratelimit.NewPacer(250*time.Millisecond), pagination.DefaultConfig())
//	res := w.Walk(ctx, descriptor, knownIDs)
//	if res.Err != nil {
//		// descriptor stopped early, res.Items still holds partial results
//	}
package pagination
