// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, map[string]string{"method": "initialized"}))
	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: 24\r\n\r\n"))

	body, err := readFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"initialized"}`, string(body))
}

func TestFrame_ExtraHeaders(t *testing.T) {
	in := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\n" +
		"content-length: 2\r\n\r\n{}"
	body, err := readFrame(bufio.NewReader(strings.NewReader(in)))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestFrame_Errors(t *testing.T) {
	t.Run("bad length", func(t *testing.T) {
		_, err := readFrame(bufio.NewReader(strings.NewReader("Content-Length: abc\r\n\r\n")))
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})
	t.Run("eof", func(t *testing.T) {
		_, err := readFrame(bufio.NewReader(strings.NewReader("")))
		assert.ErrorIs(t, err, io.EOF)
	})
	t.Run("short body", func(t *testing.T) {
		_, err := readFrame(bufio.NewReader(strings.NewReader("Content-Length: 10\r\n\r\n{}")))
		assert.Error(t, err)
	})
}

func TestDecodeLocations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"null", `null`, nil},
		{"empty", ``, nil},
		{"single", `{"uri":"file:///w/a.ts","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}}}`, []string{"file:///w/a.ts"}},
		{"array", `[{"uri":"file:///w/a.ts","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},{"uri":"file:///w/b.ts","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}]`, []string{"file:///w/a.ts", "file:///w/b.ts"}},
		{"links", `[{"targetUri":"file:///w/c.ts","targetRange":{"start":{"line":0,"character":0},"end":{"line":9,"character":0}},"targetSelectionRange":{"start":{"line":4,"character":6},"end":{"line":4,"character":9}}}]`, []string{"file:///w/c.ts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := decodeLocations(json.RawMessage(tt.raw))
			require.NoError(t, err)
			var got []string
			for _, l := range locs {
				got = append(got, l.URI)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	locs, err := decodeLocations(json.RawMessage(tests[4].raw))
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 4, Character: 6}, locs[0].Range.Start)

	_, err = decodeLocations(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestLanguageID(t *testing.T) {
	assert.Equal(t, "typescript", languageID("src/a.ts"))
	assert.Equal(t, "typescriptreact", languageID("src/App.tsx"))
	assert.Equal(t, "javascript", languageID("lib/x.js"))
	assert.Equal(t, "javascriptreact", languageID("lib/View.jsx"))
}

func TestURIRoundTrip(t *testing.T) {
	uri := pathToURI("/work/my app/src/a.ts")
	assert.Equal(t, "file:///work/my%20app/src/a.ts", uri)

	p, ok := uriToPath(uri)
	require.True(t, ok)
	assert.Equal(t, "/work/my app/src/a.ts", p)

	_, ok = uriToPath("untitled:Untitled-1")
	assert.False(t, ok)
}

func TestResponseError(t *testing.T) {
	err := &ResponseError{Code: -32601, Message: "unhandled method"}
	assert.True(t, err.IsMethodNotFound())
	assert.Equal(t, "lsp error -32601: unhandled method", err.Error())
}
