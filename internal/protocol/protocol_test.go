package protocol

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTripsThroughFraming(t *testing.T) {
	var buf bytes.Buffer
	req := NewEventRequest(event.AgentDone("p1"))
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestResponseRoundTripsThroughFraming(t *testing.T) {
	var buf bytes.Buffer
	resp := Status(StatusPayload{UptimeSecs: 42, PipelinesActive: 3})
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestMultipleFramesOnOneStreamDecodeInOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, NewQueryStatusRequest()))
	require.NoError(t, WriteRequest(&buf, NewShutdownRequest()))

	r := bufio.NewReader(&buf)
	first, err := ReadRequest(r)
	require.NoError(t, err)
	require.Equal(t, RequestQuery, first.Kind)

	second, err := ReadRequest(r)
	require.NoError(t, err)
	require.Equal(t, RequestShutdown, second.Kind)
}

func TestReadFrameRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff})
	var v any
	err := ReadFrame(bufio.NewReader(&buf), &v)
	require.Error(t, err)
}
