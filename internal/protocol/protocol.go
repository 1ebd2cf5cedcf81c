// Package protocol implements the length-prefixed JSON request/response
// framing exchanged between the oj client and the ojd daemon over a
// UNIX-domain stream socket.
package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alfredjeanlab/oj/internal/event"
)

// maxFrameBytes bounds a single frame to guard against a malformed peer
// claiming an enormous length prefix.
const maxFrameBytes = 16 << 20

// RequestKind tags a Request's variant.
type RequestKind string

const (
	RequestEvent      RequestKind = "event"
	RequestQuery      RequestKind = "query"
	RequestCheckpoint RequestKind = "checkpoint"
	RequestShutdown   RequestKind = "shutdown"
)

// QueryKind tags a Query request's sub-variant.
type QueryKind string

const (
	QueryPipelines QueryKind = "pipelines"
	QueryPipeline  QueryKind = "pipeline"
	QueryStatus    QueryKind = "status"
)

// Request is one client-to-daemon message.
type Request struct {
	Kind RequestKind `json:"kind"`

	// Event
	Event event.Event `json:"event,omitempty"`

	// Query
	Query      QueryKind `json:"query,omitempty"`
	PipelineID string    `json:"pipeline_id,omitempty"`
}

// NewEventRequest builds a Request carrying an Event for the daemon to
// dispatch into its runtime loop.
func NewEventRequest(e event.Event) Request { return Request{Kind: RequestEvent, Event: e} }

// NewQueryPipelinesRequest builds a Request asking for the pipeline list.
func NewQueryPipelinesRequest() Request { return Request{Kind: RequestQuery, Query: QueryPipelines} }

// NewQueryPipelineRequest builds a Request asking for one pipeline's detail.
func NewQueryPipelineRequest(idOrPrefix string) Request {
	return Request{Kind: RequestQuery, Query: QueryPipeline, PipelineID: idOrPrefix}
}

// NewQueryStatusRequest builds a Request asking for daemon status.
func NewQueryStatusRequest() Request { return Request{Kind: RequestQuery, Query: QueryStatus} }

// NewCheckpointRequest builds a Request asking the daemon to force a WAL
// snapshot immediately.
func NewCheckpointRequest() Request { return Request{Kind: RequestCheckpoint} }

// NewShutdownRequest builds a graceful-shutdown Request.
func NewShutdownRequest() Request { return Request{Kind: RequestShutdown} }

// ResponseKind tags a Response's variant.
type ResponseKind string

const (
	ResponseOk        ResponseKind = "ok"
	ResponseError     ResponseKind = "error"
	ResponsePipelines ResponseKind = "pipelines"
	ResponsePipeline  ResponseKind = "pipeline"
	ResponseStatus    ResponseKind = "status"
)

// PipelineSummary is the list-view projection of a pipeline.
type PipelineSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phase string `json:"phase"`
	Status string `json:"status"`
}

// PipelineDetail is the full projection of a pipeline returned by a
// single-pipeline query.
type PipelineDetail struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Kind          string            `json:"kind"`
	Phase         string            `json:"phase"`
	Status        string            `json:"status"`
	SessionID     string            `json:"session_id,omitempty"`
	WorkspacePath string            `json:"workspace_path,omitempty"`
	Inputs        map[string]string `json:"inputs,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// StatusPayload is the daemon health/activity snapshot.
type StatusPayload struct {
	UptimeSecs      int64 `json:"uptime_secs"`
	PipelinesActive int   `json:"pipelines_active"`
	SessionsActive  int   `json:"sessions_active"`
	LocksHeld       int   `json:"locks_held"`
	LocksStale      int   `json:"locks_stale"`
}

// Response is one daemon-to-client message.
type Response struct {
	Kind ResponseKind `json:"kind"`

	Message   string            `json:"message,omitempty"`
	Pipelines []PipelineSummary `json:"pipelines,omitempty"`
	Pipeline  *PipelineDetail   `json:"pipeline,omitempty"`
	Status    *StatusPayload    `json:"status,omitempty"`
}

// Ok builds a success Response carrying no payload.
func Ok() Response { return Response{Kind: ResponseOk} }

// Err builds an error Response.
func Err(message string) Response { return Response{Kind: ResponseError, Message: message} }

// Pipelines builds a Response carrying the pipeline list.
func Pipelines(list []PipelineSummary) Response {
	return Response{Kind: ResponsePipelines, Pipelines: list}
}

// Pipeline builds a Response carrying one pipeline's detail.
func Pipeline(detail PipelineDetail) Response {
	return Response{Kind: ResponsePipeline, Pipeline: &detail}
}

// Status builds a Response carrying the daemon status payload.
func Status(s StatusPayload) Response {
	return Response{Kind: ResponseStatus, Status: &s}
}

// WriteFrame writes v as a length-prefixed JSON frame: a 4-byte big-endian
// length followed by exactly that many bytes of JSON.
func WriteFrame(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: marshal frame: %w", err)
	}
	if len(b) > maxFrameBytes {
		return fmt.Errorf("protocol: frame of %d bytes exceeds limit %d", len(b), maxFrameBytes)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(b)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("protocol: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame from r and unmarshals it
// into v.
func ReadFrame(r *bufio.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("protocol: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameBytes {
		return fmt.Errorf("protocol: frame of %d bytes exceeds limit %d", n, maxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("protocol: read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("protocol: unmarshal frame: %w", err)
	}
	return nil
}

// WriteRequest writes a Request frame.
func WriteRequest(w io.Writer, req Request) error { return WriteFrame(w, req) }

// ReadRequest reads a Request frame.
func ReadRequest(r *bufio.Reader) (Request, error) {
	var req Request
	err := ReadFrame(r, &req)
	return req, err
}

// WriteResponse writes a Response frame.
func WriteResponse(w io.Writer, resp Response) error { return WriteFrame(w, resp) }

// ReadResponse reads a Response frame.
func ReadResponse(r *bufio.Reader) (Response, error) {
	var resp Response
	err := ReadFrame(r, &resp)
	return resp, err
}
