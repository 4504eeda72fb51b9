package media

import "encoding/base64"

// Source is what an operation reads frames from: either an already bound
// playback sink or a live stream. When both are set the sink wins.
type Source struct {
	Stream Stream
	Sink   Sink
}

func (src Source) Empty() bool {
	return src.Stream == nil && src.Sink == nil
}

// Acquire returns a sink for src together with its release func. A sink
// created here from the stream is closed by release; a caller-supplied sink is
// only borrowed. release is safe to call on every path, including errors.
func (src Source) Acquire() (Sink, func(), error) {
	if src.Sink != nil {
		return src.Sink, func() {}, nil
	}
	if src.Stream == nil {
		return nil, func() {}, ErrNoSource
	}
	s, err := NewStreamSink(src.Stream)
	if err != nil {
		return nil, func() {}, err
	}
	return s, s.Close, nil
}

// DataURL returns a self-contained data URI for data.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
