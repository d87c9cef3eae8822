// Package types defines the core data model shared by every loadout
// component: content manifests and their files, workspace configuration and
// results, reconciliation deltas, and the small interfaces (filesystem,
// downloader) the engine is composed from.
//
// Values here are plain data. Manifests are sealed by the builder in
// pkg/manifest and never mutated afterwards; the engine treats them as
// immutable inputs.
package types
