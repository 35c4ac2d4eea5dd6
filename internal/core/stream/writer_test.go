package stream

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushBuffer struct {
	bytes.Buffer
	flushes int
}

func (f *flushBuffer) Flush() { f.flushes++ }

func TestEventWriterFormat(t *testing.T) {
	var out flushBuffer
	w := NewEventWriter(&out)

	require.NoError(t, w.Delta(`say "hi"`))
	require.NoError(t, w.Done())

	assert.Equal(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"say \\\"hi\\\"\"}}]}\n\ndata: [DONE]\n\n",
		out.String())
	assert.Equal(t, 2, out.flushes)
}

func TestEventWriterRoundTrip(t *testing.T) {
	var out bytes.Buffer
	w := NewEventWriter(&out)
	for _, s := range []string{"line one\n", "two", "ünï"} {
		require.NoError(t, w.Delta(s))
	}
	require.NoError(t, w.Done())

	var got []string
	require.NoError(t, Decode(context.Background(), &out, func(s string) { got = append(got, s) }))
	assert.Equal(t, []string{"line one\n", "two", "ünï"}, got)
}
