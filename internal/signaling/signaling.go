package signaling

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

type WSType string

const (
	CONNECTED WSType = "Connected"
	SDP       WSType = "SDP"
	ICE       WSType = "ICE"
	ERROR     WSType = "Error"
)

// WsMsg is the envelope exchanged with the signaling server. Sender is true
// for messages coming from the camera side.
type WsMsg struct {
	Sender bool
	WSType WSType
	SDP    string
	Data   string
}

func NewWsMsg(t WSType) *WsMsg {
	return &WsMsg{
		Sender: true,
		WSType: t,
	}
}

// Signaling is a websocket connection to the signaling server. SendMsg may be
// called concurrently; ReadMsg must only be called from one goroutine.
type Signaling struct {
	wsConn  *websocket.Conn
	writeMu sync.Mutex
}

func Dial(ctx context.Context, urlStr string) (*Signaling, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return nil, err
	}
	return &Signaling{wsConn: c}, nil
}

func (sig *Signaling) SendMsg(data *WsMsg) error {
	sig.writeMu.Lock()
	defer sig.writeMu.Unlock()
	return sig.wsConn.WriteJSON(data)
}

func (sig *Signaling) ReadMsg() (*WsMsg, error) {
	nmsg := &WsMsg{}
	if err := sig.wsConn.ReadJSON(nmsg); err != nil {
		return nil, err
	}
	return nmsg, nil
}

func (sig *Signaling) Close() error {
	return sig.wsConn.Close()
}
