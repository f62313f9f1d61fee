// Package models defines the domain entities shared by the credential store, the service
// clients and the transfer engine.
//
// The package contains two categories of types:
//
// 1. Library values: in-memory snapshots of one account's music collection
//   - [Track] : song metadata keyed by its content identifier
//   - [Playlist] : ordered tracks plus display metadata
//   - [LibrarySnapshot] : every playlist and liked track of an account at one moment
//   - [LibraryStats] : counts shown by the preview command
//
// 2. Persistent records: rows owned by the repositories package
//   - [Credential] : the OAuth token set for one named account
//   - [Run] : summary of one finished transfer
//
// [Run] implements the [Model] interface; the [Repository] interface describes its storage.
package models
