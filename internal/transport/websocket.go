package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/protocol"
)

// socket frames one websocket connection. Writes are serialized; reads run on
// a single goroutine that decodes into the inbound queue. Every frame crosses
// the wire as bytes, so buffers are always copied.
type socket[In any] struct {
	conn   *websocket.Conn
	wmu    sync.Mutex
	in     chan In
	done   chan struct{}
	once   sync.Once
	decode func([]byte) (In, error)
	logger *log.Logger
	faults atomic.Uint64
}

func newSocket[In any](conn *websocket.Conn, decode func([]byte) (In, error), logger *log.Logger) *socket[In] {
	if logger == nil {
		logger = log.Default()
	}
	s := &socket[In]{
		conn:   conn,
		in:     make(chan In, queueSize),
		done:   make(chan struct{}),
		decode: decode,
		logger: logger.WithPrefix("websocket"),
	}
	go s.readLoop()
	return s
}

func (s *socket[In]) readLoop() {
	defer s.close()
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("connection lost", "err", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			s.faults.Add(1)
			s.logger.Warn("dropping non-binary frame", "kind", kind)
			continue
		}
		v, err := s.decode(data)
		if err != nil {
			s.faults.Add(1)
			s.logger.Warn("dropping frame", "err", err)
			continue
		}
		select {
		case s.in <- v:
		case <-s.done:
			return
		}
	}
}

func (s *socket[In]) write(frame []byte) error {
	select {
	case <-s.done:
		return bridge.ErrTransportClosed
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *socket[In]) close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wmu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.wmu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// WebSocket is a consumer transport to a remote simulation process.
type WebSocket struct {
	s *socket[protocol.Event]
}

// Dial connects to a simulation process served at url (ws:// or wss://).
func Dial(ctx context.Context, url string, logger *log.Logger) (*WebSocket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocket{s: newSocket(conn, protocol.DecodeEvent, logger)}, nil
}

func (w *WebSocket) Post(m protocol.Message) error {
	frame, err := protocol.EncodeMessage(m)
	if err != nil {
		return err
	}
	return w.s.write(frame)
}

func (w *WebSocket) Events() <-chan protocol.Event { return w.s.in }
func (w *WebSocket) Done() <-chan struct{}         { return w.s.done }
func (w *WebSocket) Close() error                  { return w.s.close() }

// Faults counts inbound frames dropped as undecodable.
func (w *WebSocket) Faults() uint64 { return w.s.faults.Load() }

// WebSocketEndpoint is the simulation side of a websocket link.
type WebSocketEndpoint struct {
	s *socket[protocol.Message]
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Accept upgrades an HTTP request into a simulation endpoint.
func Accept(w http.ResponseWriter, r *http.Request, logger *log.Logger) (*WebSocketEndpoint, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocketEndpoint{s: newSocket(conn, protocol.DecodeMessage, logger)}, nil
}

func (e *WebSocketEndpoint) Emit(ev protocol.Event) error {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return e.s.write(frame)
}

func (e *WebSocketEndpoint) Messages() <-chan protocol.Message { return e.s.in }
func (e *WebSocketEndpoint) Done() <-chan struct{}             { return e.s.done }
func (e *WebSocketEndpoint) Close() error                      { return e.s.close() }

// Dialer connects sessions to a remote simulation process.
type Dialer struct {
	URL    string
	Logger *log.Logger
}

func (d Dialer) Spawn(ctx context.Context) (Transport, error) {
	return Dial(ctx, d.URL, d.Logger)
}
