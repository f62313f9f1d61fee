// Package tasks transfers a Spotify library from one account to another.
//
// # Pipeline
//
// [SyncEngine.Transfer] runs in three steps:
//
//  1. Snapshot: the source library (playlists with their tracks, liked songs) and an
//     index of the target (own playlist names, liked track keys) are read concurrently.
//  2. Plan: [BuildPlan] decides create or merge per playlist and add or skip per liked
//     song. The [TransferPlan] is fixed before the first write.
//  3. Execute: playlists in source order, then liked songs oldest first, in batches.
//
// Transfers only ever add. A failed batch marks its own tracks failed and the run
// continues; re-authentication, exhausted rate limits, storage failures and
// cancellation stop it and return the partial [TransferResult].
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent on an optional channel with select/default, so a
// slow consumer drops updates instead of stalling the transfer.
package tasks
