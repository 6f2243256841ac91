//go:build !linux

package capture

// HasCameraSupport reports whether the platform has a native capture
// backend. On darwin and windows OpenCV is built against AVFoundation and
// Media Foundation, so device presence is only known once opened.
func HasCameraSupport(deviceID int) bool {
	return deviceID >= 0
}
