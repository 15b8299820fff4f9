package keepalive

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerAcceptsDialedConnection(t *testing.T) {
	var raw, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var ln = TCPListener{TCPListener: raw.(*net.TCPListener), KeepAlive: time.Minute}
	defer ln.Close()

	var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var accepted = make(chan net.Conn, 1)
	go func() {
		var conn, err = ln.Accept()
		assert.NoError(t, err)
		accepted <- conn
	}()

	dialed, err := DialerFunc(ctx, ln.Addr().String())
	require.NoError(t, err)
	defer dialed.Close()

	var conn = <-accepted
	require.NotNil(t, conn)
	defer conn.Close()
	require.IsType(t, &net.TCPConn{}, conn)

	_, err = dialed.Write([]byte("ping\n"))
	require.NoError(t, err)

	var buf = make([]byte, 5)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping\n", string(buf))
}
