package udp

import (
	"errors"
	"net"
	"time"
)

var ErrTimeout = errors.New("udp: request timeout")

const maxDatagram = 2048

// Request sends one datagram to addr and waits up to timeout for a single
// reply from the same endpoint. A timed out request is resent once before
// giving up with ErrTimeout. Each call is independent, no state is kept.
func Request(addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}

	// connected socket, so replies from other endpoints are dropped by the kernel
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	b := make([]byte, maxDatagram)

	for attempt := 0; attempt < 2; attempt++ {
		if _, err = conn.Write(payload); err != nil {
			return nil, err
		}

		if err = conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}

		n, err := conn.Read(b)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return nil, err
		}

		return b[:n], nil
	}

	return nil, ErrTimeout
}
