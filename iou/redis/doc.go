// Package redis provides the Redis client wrapper and the RedLock based
// distributed lock used to serialize commits across notary replicas.
package redis
