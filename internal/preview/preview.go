// Package preview streams a recording's H.264 chunks to a remote viewer over
// WebRTC, negotiated through the signaling server.
package preview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/acentior/camkit/internal/signaling"
	"github.com/acentior/camkit/pkg/recorder"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

var logger *log.Logger

func init() {
	logger = log.New(log.Writer(), "[preview]", log.LstdFlags)
}

var h264Codec = webrtc.RTPCodecParameters{
	RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   90000,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
	},
	PayloadType: 102,
}

// Preview is one viewer connection.
type Preview struct {
	sgl           *signaling.Signaling
	webrtcConfig  webrtc.Configuration
	frameDuration time.Duration

	mu        sync.Mutex
	peerConn  *webrtc.PeerConnection
	track     *webrtc.TrackLocalStaticSample
	connected bool
}

func New(sgl *signaling.Signaling, stunURL string, frameRate int) *Preview {
	peerConConfig := webrtc.Configuration{}
	if stunURL != "" {
		peerConConfig.ICEServers = []webrtc.ICEServer{{URLs: []string{stunURL}}}
	}
	if frameRate <= 0 {
		frameRate = 30
	}
	return &Preview{
		sgl:           sgl,
		webrtcConfig:  peerConConfig,
		frameDuration: time.Second / time.Duration(frameRate),
	}
}

// Negotiate announces the camera and answers the first SDP offer received.
func (p *Preview) Negotiate(ctx context.Context) error {
	if err := p.sgl.SendMsg(signaling.NewWsMsg(signaling.CONNECTED)); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		message, err := p.sgl.ReadMsg()
		if err != nil {
			return fmt.Errorf("reading signaling message: %w", err)
		}
		logger.Printf("received %s message", message.WSType)
		if message.WSType != signaling.SDP {
			continue
		}

		offer := webrtc.SessionDescription{}
		if err := decodeOffer(message.SDP, &offer); err != nil {
			return err
		}
		answer, err := p.answer(ctx, offer)
		if err != nil {
			return err
		}
		msg := signaling.NewWsMsg(signaling.SDP)
		msg.SDP = answer
		return p.sgl.SendMsg(msg)
	}
}

func (p *Preview) answer(ctx context.Context, offer webrtc.SessionDescription) (string, error) {
	mediaEngine := webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(h264Codec, webrtc.RTPCodecTypeVideo); err != nil {
		return "", err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(&mediaEngine))
	peerConnection, err := api.NewPeerConnection(p.webrtcConfig)
	if err != nil {
		return "", err
	}
	track, err := webrtc.NewTrackLocalStaticSample(h264Codec.RTPCodecCapability, "camera-video", uuid.New().String())
	if err != nil {
		peerConnection.Close()
		return "", err
	}

	direction, err := getTrackDirection(&offer)
	if err != nil {
		peerConnection.Close()
		return "", err
	}
	switch direction {
	case webrtc.RTPTransceiverDirectionSendrecv:
		_, err = peerConnection.AddTrack(track)
	case webrtc.RTPTransceiverDirectionRecvonly:
		_, err = peerConnection.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
	default:
		err = fmt.Errorf("unsupported transceiver direction %s", direction)
	}
	if err != nil {
		peerConnection.Close()
		return "", err
	}

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Printf("connection state has changed %s", state)
		p.mu.Lock()
		p.connected = state == webrtc.ICEConnectionStateConnected
		p.mu.Unlock()
	})

	if err = peerConnection.SetRemoteDescription(offer); err != nil {
		peerConnection.Close()
		return "", err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		peerConnection.Close()
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err = peerConnection.SetLocalDescription(answer); err != nil {
		peerConnection.Close()
		return "", err
	}

	// only one signaling message is exchanged, so wait for all candidates
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		peerConnection.Close()
		return "", ctx.Err()
	}

	p.mu.Lock()
	p.peerConn = peerConnection
	p.track = track
	p.mu.Unlock()
	return encodeOffer(*peerConnection.LocalDescription())
}

// WriteChunk forwards a recording chunk to the viewer. Chunks arriving before
// the connection is up are dropped. It has the recorder.Settings.OnChunk shape.
func (p *Preview) WriteChunk(chunk recorder.Chunk) {
	p.mu.Lock()
	track, connected := p.track, p.connected
	p.mu.Unlock()
	if track == nil || !connected {
		return
	}
	err := track.WriteSample(media.Sample{
		Data:      chunk.Data,
		Timestamp: chunk.Timestamp,
		Duration:  p.frameDuration,
	})
	if err != nil {
		logger.Printf("writing chunk %d: %v", chunk.Seq, err)
	}
}

func (p *Preview) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peerConn == nil {
		return nil
	}
	err := p.peerConn.Close()
	p.peerConn = nil
	p.track = nil
	return err
}

// decodeOffer decodes a base64 encoded JSON session description
func decodeOffer(in string, obj interface{}) error {
	b, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return fmt.Errorf("decoding offer: %w", err)
	}
	if err := json.Unmarshal(b, obj); err != nil {
		return fmt.Errorf("decoding offer: %w", err)
	}
	return nil
}

// encodeOffer encodes a session description as base64 JSON
func encodeOffer(obj interface{}) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func getTrackDirection(sdp *webrtc.SessionDescription) (webrtc.RTPTransceiverDirection, error) {
	sdpInfo, err := sdp.Unmarshal()
	if err != nil {
		return webrtc.RTPTransceiverDirectionInactive, err
	}
	for _, mediaDesc := range sdpInfo.MediaDescriptions {
		if mediaDesc.MediaName.Media == string(webrtc.MediaKindVideo) {
			if _, recvOnly := mediaDesc.Attribute("recvonly"); recvOnly {
				return webrtc.RTPTransceiverDirectionRecvonly, nil
			} else if _, sendRecv := mediaDesc.Attribute("sendrecv"); sendRecv {
				return webrtc.RTPTransceiverDirectionSendrecv, nil
			}
		}
	}
	return webrtc.RTPTransceiverDirectionInactive, nil
}
