// Package cache holds query results keyed by domain, sub-key and filter.
//
// Push events are merged into entries through Update with pure functions
// of the previous value. Refetch replaces an entry with an authoritative
// server result; concurrent refetches of one key share a single fetch.
package cache
