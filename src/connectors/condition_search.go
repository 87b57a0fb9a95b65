package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// Packet type names on the condition-search socket.
const (
	pktLogin      = "LOGIN"
	pktPing       = "PING"
	pktRegister   = "CNSRREQ"
	pktUnregister = "CNSRCLR"
	pktRealtime   = "REAL"
)

// ConditionEvent is one push from a registered server-side condition search.
type ConditionEvent struct {
	ConditionSeq string
	Symbol       string
	Inserted     bool // true when the symbol entered the result set
}

type socketPacket struct {
	Trnm         string          `json:"trnm"`
	Token        string          `json:"token,omitempty"`
	ReturnCode   *int            `json:"return_code,omitempty"`
	ReturnMsg    string          `json:"return_msg,omitempty"`
	ConditionSeq string          `json:"seq,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

type realtimeEntry struct {
	Symbol string `json:"jmcode"`
	Action string `json:"insert_delete_tp"` // "I" insert, "D" delete
}

// ConditionSearchClient listens to the brokerage's realtime condition-search
// socket and forwards matches as events. It is optional: the periodic scan
// works without it.
type ConditionSearchClient struct {
	url string

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	registered map[string]bool

	onEvent func(ConditionEvent)
	done    chan struct{}
}

func NewConditionSearchClient(socketURL string) *ConditionSearchClient {
	if socketURL == "" {
		socketURL = GetConfig().SocketURL
	}
	return &ConditionSearchClient{
		url:        socketURL,
		registered: map[string]bool{},
	}
}

// SetCallback installs the handler invoked for every realtime match.
func (c *ConditionSearchClient) SetCallback(fn func(ConditionEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// Connect dials the socket, sends the LOGIN packet and starts the read loop.
func (c *ConditionSearchClient) Connect(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("access token not set")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("condition search dial: %w", err)
	}

	login := socketPacket{Trnm: pktLogin, Token: accessToken}
	if err := conn.WriteJSON(login); err != nil {
		conn.Close()
		return fmt.Errorf("condition search login: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)

	logger.WithField("url", c.url).Info("condition search socket connected")
	return nil
}

// Register subscribes to a server-side condition by sequence id.
func (c *ConditionSearchClient) Register(conditionSeq string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("condition search socket not connected")
	}
	if c.registered[conditionSeq] {
		return nil
	}

	packet := socketPacket{Trnm: pktRegister, ConditionSeq: conditionSeq}
	if err := c.conn.WriteJSON(packet); err != nil {
		return fmt.Errorf("register condition %s: %w", conditionSeq, err)
	}

	c.registered[conditionSeq] = true
	return nil
}

// Unregister drops a condition subscription.
func (c *ConditionSearchClient) Unregister(conditionSeq string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || !c.registered[conditionSeq] {
		return nil
	}

	packet := socketPacket{Trnm: pktUnregister, ConditionSeq: conditionSeq}
	if err := c.conn.WriteJSON(packet); err != nil {
		return fmt.Errorf("unregister condition %s: %w", conditionSeq, err)
	}

	delete(c.registered, conditionSeq)
	return nil
}

// Close shuts the socket and waits for the read loop to exit.
func (c *ConditionSearchClient) Close() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.connected = false
	c.registered = map[string]bool{}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *ConditionSearchClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.done != nil {
			close(c.done)
			c.done = nil
		}
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		var packet socketPacket
		if err := conn.ReadJSON(&packet); err != nil {
			logger.WithError(err).Debug("condition search socket closed")
			return
		}

		switch packet.Trnm {
		case pktPing:
			// the server expects the ping echoed back
			_ = conn.WriteJSON(packet)

		case pktLogin:
			if packet.ReturnCode != nil && *packet.ReturnCode != 0 {
				logger.WithField("msg", packet.ReturnMsg).Error("condition search login rejected")
				return
			}
			logger.Info("condition search login accepted")

		case pktRealtime:
			c.dispatch(packet)
		}
	}
}

func (c *ConditionSearchClient) dispatch(packet socketPacket) {
	c.mu.Lock()
	handler := c.onEvent
	c.mu.Unlock()

	if handler == nil || len(packet.Data) == 0 {
		return
	}

	var entries []realtimeEntry
	if err := json.Unmarshal(packet.Data, &entries); err != nil {
		logger.WithError(err).Warn("condition search payload not decodable")
		return
	}

	for _, entry := range entries {
		handler(ConditionEvent{
			ConditionSeq: packet.ConditionSeq,
			Symbol:       NormalizeSymbol(entry.Symbol),
			Inserted:     entry.Action != "D",
		})
	}
}
