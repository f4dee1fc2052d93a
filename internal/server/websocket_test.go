package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mesh-mac-simulation/internal/eventBus"
	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopInjector struct{ calls atomic.Int32 }

func (n *nopInjector) InjectFrame(context.Context, frame.Address, frame.Address, []byte) error {
	n.calls.Add(1)
	return nil
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWebsocketStreamsEvents(t *testing.T) {
	bus := eventBus.NewEventBus(nil)
	srv := httptest.NewServer(New(bus, &nopInjector{}, metrics.NewCollector(), nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	// the subscription is registered after the upgrade completes
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	bus.Publish(eventBus.Event{Type: eventBus.EventFrameAcked, NodeID: "n1", Seq: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev eventBus.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, eventBus.EventFrameAcked, ev.Type)
	assert.Equal(t, "n1", ev.NodeID)
	assert.EqualValues(t, 3, ev.Seq)

	conn.Close()
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebsocketClosedWhenBusCloses(t *testing.T) {
	bus := eventBus.NewEventBus(nil)
	srv := httptest.NewServer(New(bus, &nopInjector{}, metrics.NewCollector(), nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	bus.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev eventBus.Event
		err := conn.ReadJSON(&ev)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			return
		}
	}
}

func TestHTTPRoutes(t *testing.T) {
	inj := &nopInjector{}
	coll := metrics.NewCollector()
	coll.SetRun(metrics.RunInfo{Name: "routes"})
	srv := httptest.NewServer(New(eventBus.NewEventBus(nil), inj, coll, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/report")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/nodeAPI/send", "application/json",
		strings.NewReader(`{"node_id":"0A-AA-00-00-00-00-00-01","dest_node_id":"broadcast","message":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 1, inj.calls.Load())
	http.DefaultClient.CloseIdleConnections()
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(eventBus.NewEventBus(nil), &nopInjector{}, metrics.NewCollector(), nil)

	errc := make(chan error, 1)
	go func() { errc <- s.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/report")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
	http.DefaultClient.CloseIdleConnections()
}
