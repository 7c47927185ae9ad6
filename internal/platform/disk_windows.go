//go:build windows

package platform

// FreeDiskSpace is not implemented on Windows; 0 disables the low-space
// warning.
func FreeDiskSpace(path string) int64 {
	return 0
}
