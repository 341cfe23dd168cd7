// Package cache implements CacheStorage: a set of named CacheStores, each one
// a persistent mapping from a normalized request (method + URL) to a captured
// response (status, headers, body). Store names carry the controller's cache
// version, so garbage collection is a matter of deleting every store whose
// name differs from the current version. Drivers: "leveldb" (default, on
// disk), "file" (one file per entry with temp file + rename writes) and
// "memory" (leveldb over an in-memory storage, used by tests and demos).
// Per-operation atomicity of get/put/delete is provided by the drivers; no
// cross-operation locking is offered or required by callers.
package cache
