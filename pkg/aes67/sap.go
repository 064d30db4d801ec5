package aes67

import (
	"bytes"
	"context"
	"net"
	"time"
)

// Listen joins the SAP multicast group and collects announcement payloads
// for exactly window. ifaceIP picks the local interface to join on, empty
// means the OS default. Duplicates pass through, dedup is the cache's job.
func Listen(ctx context.Context, ifaceIP string, window time.Duration) ([][]byte, error) {
	group := &net.UDPAddr{IP: net.ParseIP(SAPMulticast), Port: SAPPort}

	ifi, err := interfaceByIP(ifaceIP)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err = conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return nil, err
	}

	// unblock the read loop on cancel
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Unix(0, 1))
		case <-done:
		}
	}()

	var payloads [][]byte

	b := make([]byte, 4096)
	for {
		n, _, err := conn.ReadFromUDP(b)
		if err != nil {
			break // window elapsed or cancelled
		}
		if sdp := StripSAP(b[:n]); sdp != nil {
			payloads = append(payloads, sdp)
		}
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// StripSAP returns a copy of the SDP payload of a SAPv1 announcement.
// Deletions, other versions and truncated packets yield nil.
func StripSAP(b []byte) []byte {
	if len(b) < 8 {
		return nil
	}

	flags := b[0]
	version := flags >> 5 & 0x07
	ipv6 := flags>>4&1 == 1
	deletion := flags>>2&1 == 1

	if version != 1 || deletion {
		return nil
	}

	originLen := 4
	if ipv6 {
		originLen = 16
	}

	// header + origin + auth data (32-bit words)
	off := 4 + originLen + int(b[1])*4
	if off >= len(b) {
		return nil
	}

	payload := b[off:]

	// optional NUL-terminated MIME type before the SDP text
	if !bytes.HasPrefix(payload, []byte("v=")) {
		i := bytes.IndexByte(payload, 0)
		if i < 0 {
			return nil
		}
		payload = payload[i+1:]
	}

	return append([]byte(nil), payload...)
}

func interfaceByIP(ip string) (*net.Interface, error) {
	if ip == "" {
		return nil, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for i, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipn, ok := addr.(*net.IPNet); ok && ipn.IP.String() == ip {
				return &ifaces[i], nil
			}
		}
	}

	return nil, nil // unknown IP, fall back to the default interface
}
