package unix

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/framelink/framelink/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.sock")

	listener, err := Listen(path)
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan link.Transport, 1)
	go func() {
		raw, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- Wrap(raw)
	}()

	client, err := Dial(path)
	require.NoError(t, err)
	defer client.Close()

	var server link.Transport
	select {
	case server = <-accepted:
		defer server.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("accept never completed")
	}

	assert.Equal(t, link.KindStream, client.Kind())

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)
	chunk, err := server.Read()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(chunk))

	_, err = server.Write([]byte("pong"))
	require.NoError(t, err)
	chunk, err = client.Read()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(chunk))
}

func TestPeerClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.sock")

	listener, err := Listen(path)
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		raw, err := listener.Accept()
		if err == nil {
			raw.Close()
		}
	}()

	client, err := Dial(path)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read()
	assert.ErrorIs(t, err, link.ErrTransportClosed)
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "absent.sock"))
	assert.Error(t, err)
}
