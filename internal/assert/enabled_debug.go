//go:build hevcenc_debug

package assert

// Enabled is true when assertions panic.
const Enabled = true
