//go:build linux

package capture

import (
	"fmt"
	"os"
)

// HasCameraSupport reports whether a V4L2 device node exists for deviceID.
// It does not open the device.
func HasCameraSupport(deviceID int) bool {
	info, err := os.Stat(fmt.Sprintf("/dev/video%d", deviceID))
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeDevice != 0
}
