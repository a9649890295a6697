package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/codegraphhq/codegraph/internal/mcp/tools"
)

// maxLineBytes bounds a single JSON-RPC request line.
const maxLineBytes = 4 * 1024 * 1024

// StdioTransport reads one JSON-RPC request per line and writes one
// response per line. Responses go to out; anything else the process
// prints must stay on stderr because stdout carries the protocol.
type StdioTransport struct {
	scanner *bufio.Scanner
	out     io.Writer
	handler *Handler
}

// NewStdioTransport wires a transport to the process's stdin and stdout.
func NewStdioTransport(handler *Handler) *StdioTransport {
	return newTransport(handler, os.Stdin, os.Stdout)
}

func newTransport(handler *Handler, in io.Reader, out io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &StdioTransport{scanner: scanner, out: out, handler: handler}
}

// Start serves requests until the input closes or ctx is cancelled.
func (t *StdioTransport) Start(ctx context.Context) error {
	for t.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := t.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var req tools.JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			t.send(errorResponse(nil, -32700, "Parse error"))
			continue
		}

		t.send(t.handler.Handle(ctx, &req))
	}
	return t.scanner.Err()
}

func (t *StdioTransport) send(resp *tools.JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(errorResponse(resp.ID, -32603, "Internal error: response not serialisable"))
	}
	fmt.Fprintln(t.out, string(data))
}
