package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegraphhq/codegraph/internal/auth"
	"github.com/codegraphhq/codegraph/internal/mcp/tools"
)

func decodeResponse(t *testing.T, line string) tools.JSONRPCResponse {
	t.Helper()
	var resp tools.JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestTransportServesLineDelimitedRequests(t *testing.T) {
	h := newHandler(nil)
	h.RegisterTool("echo", auth.ScopeRead, &fakeTool{result: map[string]interface{}{"ok": true}})

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
		`this is not json`,
		`{"jsonrpc":"2.0","id":3,"method":"no/such"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	transport := newTransport(h, strings.NewReader(input), &out)
	require.NoError(t, transport.Start(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4, "blank lines produce no response")

	resp := decodeResponse(t, lines[0])
	assert.Nil(t, resp.Error)
	assert.EqualValues(t, 1, resp.ID)

	resp = decodeResponse(t, lines[1])
	assert.Nil(t, resp.Error)
	assert.EqualValues(t, 2, resp.ID)

	resp = decodeResponse(t, lines[2])
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
	assert.Equal(t, "Parse error", resp.Error.Message)
	assert.Nil(t, resp.ID)

	resp = decodeResponse(t, lines[3])
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.EqualValues(t, 3, resp.ID)
}

func TestTransportStopsOnCancelledContext(t *testing.T) {
	h := newHandler(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	transport := newTransport(h, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`+"\n"), &out)
	err := transport.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestTransportFinishesCleanlyAtEOF(t *testing.T) {
	h := newHandler(nil)

	var out bytes.Buffer
	transport := newTransport(h, strings.NewReader(""), &out)
	require.NoError(t, transport.Start(context.Background()))
	assert.Empty(t, out.String())
}
