//go:build !darwin

package permissions

// Only macOS gates screen capture behind a user grant.
func platformScreenCaptureAccess(bool) bool { return true }
