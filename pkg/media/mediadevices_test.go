package media

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceForFacing(t *testing.T) {
	devices := []DeviceInfo{
		{DeviceID: "/dev/video0", Label: "USB Rear Camera"},
		{DeviceID: "/dev/video2", Label: "Integrated Front Webcam"},
	}
	assert.Equal(t, "/dev/video2", deviceForFacing(devices, FacingUser))
	assert.Equal(t, "/dev/video0", deviceForFacing(devices, FacingEnvironment))
	assert.Equal(t, "", deviceForFacing(devices, "sideways"))
	assert.Equal(t, "", deviceForFacing(nil, FacingUser))
}

func TestClassify(t *testing.T) {
	err := classify(fmt.Errorf("open /dev/video0: %w", fs.ErrPermission))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = classify(errors.New("failed to find the best driver that fits the constraints"))
	assert.ErrorIs(t, err, ErrNoMatchingDevice)
}
