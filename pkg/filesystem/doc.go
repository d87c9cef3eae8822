// Package filesystem provides types.FS implementations: an OS-backed one for
// production and an afero-backed one so tests can run against an in-memory
// filesystem where symlink fidelity is not required.
package filesystem
