//go:build !cgo

package boilerplate

// newEntryPointDetector returns nil when cgo is unavailable so the Injector relies on textual markers.
func newEntryPointDetector() entryPointDetector {
	return nil
}
