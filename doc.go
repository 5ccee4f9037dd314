// Package finder locates typed facets in a host node graph.
//
// A Locator holds one rule: a mode saying where to look (relative to an anchor node,
// a named node, tagged nodes, or explicit references), a scope, and a few toggles.
// Lookups are generic over the requested type:
//
//	l := finder.New(graph).ByScope(player, finder.Descendants).WithCache()
//	weapons, err := finder.GetAll[*Weapon](l)
//
// Rule changes that miss a required parameter are rejected. The previous rule is
// kept and the error is returned by Err and by every lookup until a change succeeds.
//
// Cached results are not invalidated when the graph changes. Call ClearCache, or hook
// it to the host's change notifications.
package finder
