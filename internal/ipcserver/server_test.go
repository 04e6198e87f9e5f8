package ipcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/undertone-audio/undertone/internal/ipc"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	s := New(socketPath, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Start(ctx))
	return s, socketPath
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStartRemovesStaleSocketFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.sock")

	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	_ = stale.Close() // leaves the socket file behind on most platforms

	s := New(path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Start(ctx))
}

func TestSubscribeIsAnsweredWithoutTouchingEventLoop(t *testing.T) {
	s, path := startTestServer(t)
	conn := dial(t, path)

	_, err := conn.Write([]byte(`{"id":1,"method":{"type":"Subscribe","events":["app_discovered"]}}` + "\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var env ipc.ResponseEnvelope
	require.NoError(t, json.Unmarshal([]byte(line), &env))
	assert.Equal(t, uint64(1), env.ID)

	select {
	case <-s.Requests():
		t.Fatal("Subscribe should not reach the Event Loop request channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueryRequestIsForwardedAndRepliedInOrder(t *testing.T) {
	s, path := startTestServer(t)
	conn := dial(t, path)

	_, err := conn.Write([]byte(
		`{"id":1,"method":{"type":"GetState"}}` + "\n" +
			`{"id":2,"method":{"type":"GetChannels"}}` + "\n"))
	require.NoError(t, err)

	first := <-s.Requests()
	assert.IsType(t, ipc.GetStateRequest{}, first.Req)
	second := <-s.Requests()
	assert.IsType(t, ipc.GetChannelsRequest{}, second.Req)

	// Reply out of arrival order — the server must still write them to
	// the socket in the order the client sent them.
	payload2, _ := ipc.EncodeResult(second.RequestID, map[string]any{"channels": []string{}})
	payload1, _ := ipc.EncodeResult(first.RequestID, map[string]any{"state": "running"})
	second.Reply <- payload2
	first.Reply <- payload1

	reader := bufio.NewReader(conn)
	line1, err := reader.ReadString('\n')
	require.NoError(t, err)
	line2, err := reader.ReadString('\n')
	require.NoError(t, err)

	var env1, env2 ipc.ResponseEnvelope
	require.NoError(t, json.Unmarshal([]byte(line1), &env1))
	require.NoError(t, json.Unmarshal([]byte(line2), &env2))
	assert.Equal(t, uint64(1), env1.ID)
	assert.Equal(t, uint64(2), env2.ID)
}

func TestBroadcastRespectsSubscriptionFilter(t *testing.T) {
	s, path := startTestServer(t)
	conn := dial(t, path)

	_, err := conn.Write([]byte(`{"id":1,"method":{"type":"Subscribe","events":["app_discovered"]}}` + "\n"))
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	_, err = reader.ReadString('\n') // Subscribe ack
	require.NoError(t, err)

	s.Broadcast(ipc.EventAppRemoved, nil) // not subscribed, should not arrive
	s.Broadcast(ipc.EventAppDiscovered, map[string]any{"channel": "music"})

	require.Eventually(t, func() bool {
		return s.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	var env ipc.EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(line), &env))
	assert.Equal(t, ipc.EventAppDiscovered, env.Event)
}

func TestInvalidJSONLineDoesNotCloseConnection(t *testing.T) {
	_, path := startTestServer(t)
	conn := dial(t, path)

	_, err := conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	var env ipc.ResponseEnvelope
	require.NoError(t, json.Unmarshal([]byte(line), &env))
	require.NotNil(t, env.Result.Err)
	assert.Equal(t, ipc.CodeInvalidArgument, env.Result.Err.Code)

	// connection should still be usable afterwards
	_, err = conn.Write([]byte(`{"id":2,"method":{"type":"GetState"}}` + "\n"))
	assert.NoError(t, err)
}
