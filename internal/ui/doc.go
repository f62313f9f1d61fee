// Package ui implements the interactive transfer screen using bubbletea's Elm architecture.
//
// The workflow mirrors the CLI transfer command:
//  1. [SourceView] : pick the account to copy from
//  2. [TargetView] : pick the account to copy into
//  3. [ConfirmView] : review the pair, toggle dry run
//  4. [TransferView] : watch progress, cancel with esc
//  5. [ResultView] : counts, per-playlist outcomes and failures
//
// The transfer runs in its own goroutine with a cancellable context. Progress arrives
// over a channel fed by [tasks.SyncEngine], so the UI never waits on the network.
package ui
