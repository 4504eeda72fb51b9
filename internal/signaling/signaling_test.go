package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type SignalingSuit struct {
	suite.Suite
	server *httptest.Server
	sgl    *Signaling
}

// echoes every message back with Sender cleared, like a viewer would answer
func (s *SignalingSuit) SetupSuite() {
	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg WsMsg
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			msg.Sender = false
			if err := conn.WriteJSON(&msg); err != nil {
				return
			}
		}
	}))
}

// run once, after test suite methods
func (s *SignalingSuit) TearDownSuite() {
	s.server.Close()
}

func (s *SignalingSuit) SetupTest() {
	sgl, err := Dial(context.Background(), "ws"+strings.TrimPrefix(s.server.URL, "http"))
	s.Require().NoError(err)
	s.sgl = sgl
}

// run after each test
func (s *SignalingSuit) TearDownTest() {
	s.sgl.Close()
}

// listen for 'go test' command --> run test methods
func TestSuite(t *testing.T) {
	suite.Run(t, new(SignalingSuit))
}

func (s *SignalingSuit) Test_RoundTrip() {
	msg := NewWsMsg(SDP)
	msg.SDP = "offer"
	s.Require().NoError(s.sgl.SendMsg(msg))

	got, err := s.sgl.ReadMsg()
	s.Require().NoError(err)
	s.Equal(SDP, got.WSType)
	s.Equal("offer", got.SDP)
	s.False(got.Sender)
}

func (s *SignalingSuit) Test_DialFailure() {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1")
	s.Error(err)
}
