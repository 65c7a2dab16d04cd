package lkroom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/vovakirdan/wiremeet/internal/reconciler"
)

// ErrNoDevice is returned for a source with no configured file.
var ErrNoDevice = errors.New("no device configured")

// FileDevices stands in for a microphone and camera by streaming media files:
// Ogg/Opus for audio and IVF (VP8) or raw H.264 for video.
type FileDevices struct {
	AudioFile string
	VideoFile string
}

var (
	audioExt = map[string]string{".ogg": webrtc.MimeTypeOpus}
	videoExt = map[string]string{".ivf": webrtc.MimeTypeVP8, ".h264": webrtc.MimeTypeH264}
)

// Open loads the file configured for source into a local track.
// A source without a file reports ErrNoDevice.
func (d FileDevices) Open(_ context.Context, source reconciler.TrackSource) (reconciler.MediaTrack, error) {
	var (
		path    string
		allowed map[string]string
	)
	switch source {
	case reconciler.SourceMicrophone:
		path, allowed = d.AudioFile, audioExt
	case reconciler.SourceCamera:
		path, allowed = d.VideoFile, videoExt
	default:
		return nil, fmt.Errorf("%w for %s", ErrNoDevice, source)
	}
	if path == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoDevice, source)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := allowed[ext]; !ok {
		return nil, fmt.Errorf("%s: unsupported file type %q", source, ext)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	track, err := lksdk.NewLocalFileTrack(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", source, path, err)
	}
	return &FileTrack{source: source, track: track}, nil
}

// FileTrack is a local track backed by a media file.
type FileTrack struct {
	source reconciler.TrackSource
	track  *lksdk.LocalTrack
	once   sync.Once
	err    error
}

// Source reports which device the track stands in for.
func (t *FileTrack) Source() reconciler.TrackSource { return t.source }

// Close releases the underlying track once.
func (t *FileTrack) Close() error {
	t.once.Do(func() { t.err = t.track.Close() })
	return t.err
}
