// Package artifact stores the file bundles produced by successful builds.
//
// A bundle is written once per session and never mutated. Stores publish a
// bundle atomically so a concurrent Load sees either the previous bundle or
// the new one in full. Whether small secondary files are embedded into the
// primary document is decided when the bundle is rendered, not when it is
// saved, so the inline threshold can change without rebuilding.
package artifact
