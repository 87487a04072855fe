// Package nodeconfig holds the argument set of the mfer-node sidecar.
//
// A Config is persisted as a small JSON document shared with the desktop
// shell (default $HOME/.config/mfersafe.json). Loading is best effort: a file
// that is missing, unreadable, malformed, has unknown keys or lacks any key
// resolves to Default() as a whole, never to a partially defaulted mix.
//
// Saving takes an advisory lock on "<path>.lock" and replaces the document
// with a rename, so concurrent readers see either the old or the new file.
//
// BuildArgs turns a Config into the node's command line:
//
//	-account v -logpath v -upstream v -listen v [-keycache v] -batchsize v
package nodeconfig
