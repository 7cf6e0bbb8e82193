package container

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemoryLimit(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512m", 512 * 1024 * 1024, false},
		{"1g", 1024 * 1024 * 1024, false},
		{"256k", 256 * 1024, false},
		{"1024", 1024, false},
		{"  2G ", 2 * 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := parseMemoryLimit(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func stdcopyFrame(stream byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestDemuxExecOutputSplitsStdoutAndStderr(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(stdcopyFrame(1, "hello "))
	buf.Write(stdcopyFrame(2, "oops"))
	buf.Write(stdcopyFrame(1, "world"))

	stdout, stderr, err := demuxExecOutput(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", stdout)
	assert.Equal(t, "oops", stderr)
}

func TestDemuxExecOutputEmptyStream(t *testing.T) {
	stdout, stderr, err := demuxExecOutput(&bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}
