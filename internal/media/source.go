package media

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Source produces capture tracks for a set of constraints. The default is
// SyntheticSource; a device-backed source (camera/microphone driver) plugs
// in here without the rest of the core knowing.
type Source interface {
	Open(c Constraints) ([]*Track, error)
}

// SyntheticSource creates audio and video tracks with no device behind
// them. The tracks negotiate like real capture tracks; whoever owns the
// source decides what samples, if any, to write.
type SyntheticSource struct{}

func (SyntheticSource) Open(c Constraints) ([]*Track, error) {
	streamID := "capture-" + uuid.NewString()[:8]

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: uint32(c.Audio.SampleRate),
		Channels:  uint16(c.Audio.ChannelCount),
	}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	return []*Track{
		NewTrack(KindAudio, audio),
		NewTrack(KindVideo, video),
	}, nil
}
