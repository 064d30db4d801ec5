package app

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMemLogTail(t *testing.T) {
	m := newMemLog(16)

	_, err := m.Write([]byte("first line\n"))
	require.NoError(t, err)
	_, err = m.Write([]byte("second line\n"))
	require.NoError(t, err)

	// first line dropped as a whole
	require.Equal(t, "second line\n", string(m.Bytes()))

	m.Reset()
	require.Empty(t, m.Bytes())
}

func TestMemLogWriteTo(t *testing.T) {
	m := newMemLog(1 << 10)
	_, _ = m.Write([]byte("hello\n"))

	var sb strings.Builder
	n, err := m.WriteTo(&sb)
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
	require.Equal(t, "hello\n", sb.String())
}

func TestGetLogger(t *testing.T) {
	prev := modules["dante"]
	t.Cleanup(func() {
		if prev == "" {
			delete(modules, "dante")
		} else {
			modules["dante"] = prev
		}
	})

	Logger = zerolog.New(nil).Level(zerolog.InfoLevel)
	modules["dante"] = "trace"

	require.Equal(t, zerolog.TraceLevel, GetLogger("dante").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("unknown").GetLevel())
}
