package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

// Platform acquires streams through pion/mediadevices. Camera drivers must be
// registered by the binary, e.g. with a blank import of
// github.com/pion/mediadevices/pkg/driver/camera.
type Platform struct{}

func NewPlatform() *Platform {
	return &Platform{}
}

func (p *Platform) Supported() bool {
	return len(p.Devices()) > 0
}

func (p *Platform) Devices() []DeviceInfo {
	var devices []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		devices = append(devices, DeviceInfo{DeviceID: d.DeviceID, Label: d.Label})
	}
	return devices
}

func (p *Platform) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deviceID := c.DeviceID
	if deviceID == "" && c.FacingMode != "" {
		deviceID = deviceForFacing(p.Devices(), c.FacingMode)
	}

	ms, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mtc *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				mtc.DeviceID = prop.String(deviceID)
			}
			if c.Width > 0 {
				mtc.Width = prop.Int(c.Width)
			}
			if c.Height > 0 {
				mtc.Height = prop.Int(c.Height)
			}
			if c.FrameRate > 0 {
				mtc.FrameRate = prop.Float(c.FrameRate)
			}
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	stream := &platformStream{id: uuid.NewString()}
	for _, t := range ms.GetTracks() {
		base := &platformTrack{track: t}
		if vt, ok := t.(*mediadevices.VideoTrack); ok && stream.video == nil {
			v := &platformVideoTrack{platformTrack: base, vt: vt}
			stream.video = v
			stream.tracks = append(stream.tracks, v)
			continue
		}
		stream.tracks = append(stream.tracks, base)
	}
	if stream.video == nil {
		StopStream(stream)
		return nil, fmt.Errorf("%w: device returned no video track", ErrNoMatchingDevice)
	}
	return stream, nil
}

// deviceForFacing picks a device whose label hints at the requested facing
// mode. Desktop drivers carry no facing metadata, so labels are all there is.
func deviceForFacing(devices []DeviceInfo, facing string) string {
	var hints []string
	switch facing {
	case FacingUser:
		hints = []string{"front", "user", "facetime", "integrated"}
	case FacingEnvironment:
		hints = []string{"back", "rear", "environment"}
	}
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, h := range hints {
			if strings.Contains(label, h) {
				return d.DeviceID
			}
		}
	}
	return ""
}

func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrNoMatchingDevice, err)
}

type platformStream struct {
	id     string
	tracks []Track
	video  VideoTrack
}

func (s *platformStream) ID() string { return s.id }

func (s *platformStream) Tracks() []Track { return s.tracks }

func (s *platformStream) VideoTrack() (VideoTrack, bool) {
	return s.video, s.video != nil
}

type platformTrack struct {
	track mediadevices.Track
	once  sync.Once
	err   error
}

func (t *platformTrack) ID() string { return t.track.ID() }

func (t *platformTrack) Stop() error {
	t.once.Do(func() { t.err = t.track.Close() })
	return t.err
}

func (t *platformTrack) OnEnded(handler func(error)) {
	t.track.OnEnded(handler)
}

type platformVideoTrack struct {
	*platformTrack
	vt *mediadevices.VideoTrack
}

func (t *platformVideoTrack) NewReader(copyFrame bool) video.Reader {
	return t.vt.NewReader(copyFrame)
}
