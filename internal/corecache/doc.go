// Package corecache provides a two-tier result cache, a JSON Redis client,
// an MCP tool-result cache and entry-validation helpers. No other package in
// this module imports it.
//
// # Two-tier caching
//
// L1 is in-memory, L2 is Redis; TieredCache checks L1 first and falls back
// to L2, writing through to both on Set:
//
//	tiered := corecache.NewTieredCache(redisClient, corecache.DefaultTieredCacheConfig())
//	found, err := tiered.Get(ctx, "key", &dest)
//	err = tiered.Set(ctx, "key", value, ttl)
//
// # Redis
//
//	redis := corecache.NewRedisClient(&cfg.Services.Redis)
//	err := redis.Set(ctx, "key", value, 5*time.Minute)
//	err = redis.Get(ctx, "key", &dest)
//
// # MCP tool-result cache
//
// mcp_cache.go caches tool invocation results in a TieredCache, keyed by
// server name, tool name and a hash of the JSON-encoded arguments. Tools in
// NeverCacheTools are never stored.
//
// # Expiration
//
// expiration.go checks entries against a maximum age and per-pattern
// validator functions, and force-expires entries by key prefix or tag
// through the TieredCache. It keeps no per-key TTL records of its own.
package corecache
