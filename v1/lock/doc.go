// Package lock provides a single-instance distributed lock on Redis.
//
// A Lock handle owns a token minted at construction. Acquisition is a
// SET NX with a TTL; release is a server-side compare-and-delete, so a handle
// can never release a lock held by another owner. Retries follow an explicit
// backoff policy bounded by the caller's context.
//
// A handle that already holds its lock is not special-cased: a second TryLock
// fails against its own record until that record expires.
package lock
