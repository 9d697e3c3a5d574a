// Automated moderation of freeform text records in a document store.
//
// This package (`github.com/contentmod/contentmod/automod`) contains the moderation pipeline: an idempotency guard over versioned metadata stored on each record, a provider abstraction which normalizes heterogeneous scoring backends (see the `provider` sub-package) in to a single Result shape, and an action engine which flags, hides, or deletes records based on that result. Records are moderated as they are created (see Moderator), and pre-existing records can be swept in bounded batches by the `backfill` package.
//
// Metadata written by this package is stamped with CurrentVersion. Bumping the version makes all previously processed records eligible for moderation again.
package automod
