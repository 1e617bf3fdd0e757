package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/simbridge/internal/protocol"
	"github.com/san-kum/simbridge/internal/schedule"
	"github.com/san-kum/simbridge/internal/transport"
)

type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// manualClock hands out tickers that only fire when the test says so.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(5000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) NewTicker(time.Duration) schedule.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) Tickers() []*manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*manualTicker(nil), c.tickers...)
}

// Fire delivers one timer fire to the newest ticker.
func (c *manualClock) Fire() {
	ts := c.Tickers()
	Expect(ts).NotTo(BeEmpty(), "no ticker armed")
	select {
	case ts[len(ts)-1].c <- c.Now():
	case <-time.After(time.Second):
		Fail("ticker not being read")
	}
}

// pipeSpawner hands the session one end of a pipe and keeps the other for
// the test to play the simulation side.
type pipeSpawner struct {
	transfer bool
	err      error
	// dead hands out links the simulation side has already closed.
	dead bool
	ep   *transport.PipeEndpoint
}

func (p *pipeSpawner) Spawn(ctx context.Context) (transport.Transport, error) {
	if p.err != nil {
		return nil, p.err
	}
	host, ep := transport.NewPipe(p.transfer)
	if p.dead {
		ep.Close()
	}
	p.ep = ep
	return host, nil
}

func (p *pipeSpawner) next() protocol.Message {
	var m protocol.Message
	EventuallyWithOffset(1, p.ep.Messages()).Should(Receive(&m))
	return m
}

func (p *pipeSpawner) quiet() {
	ConsistentlyWithOffset(1, p.ep.Messages(), "50ms").ShouldNot(Receive())
}

func (p *pipeSpawner) emit(ev protocol.Event) {
	ExpectWithOffset(1, p.ep.Emit(ev)).To(Succeed())
}

type failingLoader struct{}

func (failingLoader) Load(context.Context) (RuntimeImage, error) {
	return RuntimeImage{}, errors.New("corrupt image")
}

var testImage = StaticLoader{Image: RuntimeImage{Name: "sim.wasm", Data: []byte{0, 'a', 's', 'm'}}}

// garbageServer accepts one websocket and answers the first message with
// frames that do not decode. It returns the server and its ws:// URL.
func garbageServer() (*httptest.Server, string) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xff})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not a frame"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}
