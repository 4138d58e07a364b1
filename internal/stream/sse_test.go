package stream_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

func TestDecoderReadsBackendFrames(t *testing.T) {
	body := strings.Join([]string{
		`event: connected`,
		`data: {"resources": ["session:1"]}`,
		``,
		`: keepalive`,
		``,
		`event: status_update`,
		`id: 7`,
		`retry: 3000`,
		`data: {"resource_id": "session:1",`,
		`data:  "data": {"status": "pending"}}`,
		``,
	}, "\r\n")
	dec := stream.NewDecoder(strings.NewReader(body))

	first, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "connected", first.Event)
	assert.JSONEq(t, `{"resources": ["session:1"]}`, first.Data)

	keepalive, err := dec.Next()
	require.NoError(t, err)
	assert.True(t, keepalive.IsComment())
	assert.Equal(t, "keepalive", keepalive.Comment)

	status, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "status_update", status.Event)
	assert.Equal(t, "7", status.ID)
	assert.Equal(t, 3000, status.Retry)
	assert.Equal(t, "{\"resource_id\": \"session:1\",\n \"data\": {\"status\": \"pending\"}}", status.Data)

	_, err = dec.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestDecoderFlushesTrailingFrameWithoutBlankLine(t *testing.T) {
	dec := stream.NewDecoder(strings.NewReader("data: tail"))
	frame, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", frame.Data)
	assert.Empty(t, frame.Event)
}

func TestDecoderIgnoresUnknownFields(t *testing.T) {
	dec := stream.NewDecoder(strings.NewReader("foo: bar\nevent: x\ndata\n\n"))
	frame, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", frame.Event)
	assert.Equal(t, "", frame.Data)
}
