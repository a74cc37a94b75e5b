package media

// AudioConstraints describes the desired capture properties for the audio
// track. Values are ideals, negotiated with the device rather than
// guaranteed.
type AudioConstraints struct {
	ChannelCount     int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
}

// VideoConstraints describes the ideal video capture geometry.
type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate int
}

// Constraints bundles the audio and video capture requests.
type Constraints struct {
	Audio AudioConstraints
	Video VideoConstraints
}

// DefaultConstraints returns the capture profile used when the caller has no
// preference: stereo 48 kHz audio with all processing enabled, 720p video
// at 24 fps.
func DefaultConstraints() Constraints {
	return Constraints{
		Audio: AudioConstraints{
			ChannelCount:     2,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       48000,
		},
		Video: VideoConstraints{
			Width:     1280,
			Height:    720,
			FrameRate: 24,
		},
	}
}
