package udp

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newEchoServer(t *testing.T, handle func(b []byte) []byte) string {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IP{127, 0, 0, 1}})
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		b := make([]byte, maxDatagram)
		for {
			n, addr, err := conn.ReadFromUDP(b)
			if err != nil {
				return
			}
			if res := handle(b[:n]); res != nil {
				_, _ = conn.WriteToUDP(res, addr)
			}
		}
	}()

	return conn.LocalAddr().String()
}

func TestRequest(t *testing.T) {
	addr := newEchoServer(t, func(b []byte) []byte {
		return append([]byte("re:"), b...)
	})

	res, err := Request(addr, []byte("ping"), time.Second)
	require.Nil(t, err)
	require.Equal(t, []byte("re:ping"), res)
}

func TestRequestRetry(t *testing.T) {
	var calls atomic.Int32
	addr := newEchoServer(t, func(b []byte) []byte {
		// swallow the first datagram, answer the resend
		if calls.Add(1) == 1 {
			return nil
		}
		return b
	})

	res, err := Request(addr, []byte("ping"), 100*time.Millisecond)
	require.Nil(t, err)
	require.Equal(t, []byte("ping"), res)
	require.Equal(t, int32(2), calls.Load())
}

func TestRequestTimeout(t *testing.T) {
	var calls atomic.Int32
	addr := newEchoServer(t, func(b []byte) []byte {
		calls.Add(1)
		return nil
	})

	start := time.Now()
	_, err := Request(addr, []byte("ping"), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, int32(2), calls.Load())
	require.Less(t, time.Since(start), time.Second)
}
