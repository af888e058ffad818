// Package cache implements the filesystem-backed response cache. A Store maps
// hex digests onto files inside one flat directory, writing through a temp
// file + rename so readers never observe partial content; file modtime is the
// only freshness signal. Accessor layers the get-or-fetch policy on top: a
// caller supplies a Strategy (key derivation, fresh fetch, optional
// serialize/deserialize) and gets either the stored artifact or a freshly
// fetched one that is written back. Entries are never evicted, only superseded.
package cache
