package sink

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/pullpipe/internal/config"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecompressingRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 3000)
	packed := gzipped(t, data)

	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)
			inner := store.Destination("packed.bin")
			dst := Decompressing(inner)
			assert.Equal(t, inner.ID(), dst.ID())

			sink, err := dst.Open()
			require.NoError(t, err)
			for rest := packed; len(rest) > 0; {
				k := min(len(rest), 333)
				n, err := sink.Write(rest[:k])
				require.NoError(t, err)
				assert.Equal(t, k, n)
				_, err = sink.Write(nil)
				require.NoError(t, err)
				rest = rest[k:]
			}
			require.NoError(t, sink.Flush())
			require.NoError(t, sink.Close())

			var buf bytes.Buffer
			n, err := store.ReadStream(dst.ID(), &buf)
			require.NoError(t, err)
			assert.EqualValues(t, len(data), n)
			assert.Equal(t, data, buf.Bytes())

			ids, err := store.Streams()
			require.NoError(t, err)
			assert.Equal(t, []string{dst.ID()}, ids)
		})
	}
}

func TestDecompressingRejectsBadInput(t *testing.T) {
	packed := gzipped(t, bytes.Repeat([]byte("x"), 10000))

	testCases := []struct {
		name  string
		input []byte
	}{
		{"not gzip", []byte("this was never compressed")},
		{"truncated", packed[:len(packed)/2]},
		{"nothing", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := openStore(t, config.SinkFile)
			dst := Decompressing(store.Destination("bad.bin"))

			sink, err := dst.Open()
			require.NoError(t, err)
			_, _ = sink.Write(tc.input)
			assert.Error(t, sink.Flush())
			require.NoError(t, sink.Close())

			ids, err := store.Streams()
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestDecompressingCloseWithoutFlush(t *testing.T) {
	store := openStore(t, config.SinkPebble)
	dst := Decompressing(store.Destination("half.bin"))

	sink, err := dst.Open()
	require.NoError(t, err)
	packed := gzipped(t, []byte("some bytes"))
	_, err = sink.Write(packed[:4])
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	_, err = sink.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrSinkClosed)

	ids, err := store.Streams()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
