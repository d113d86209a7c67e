package sink

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/pullpipe/internal/config"
)

var allKinds = []config.SinkKind{config.SinkFile, config.SinkLevelDB, config.SinkPebble}

func openStore(t *testing.T, kind config.SinkKind) Store {
	t.Helper()
	s, err := Open(kind, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)

			dst := store.Destination("report.pdf")
			sink, err := dst.Open()
			require.NoError(t, err)

			for _, p := range []string{"AB", "", "CD", "E"} {
				n, err := sink.Write([]byte(p))
				require.NoError(t, err)
				assert.Equal(t, len(p), n)
			}
			require.NoError(t, sink.Flush())
			require.NoError(t, sink.Close())
			require.NoError(t, sink.Close(), "Close is idempotent")

			var buf bytes.Buffer
			n, err := store.ReadStream(dst.ID(), &buf)
			require.NoError(t, err)
			assert.EqualValues(t, 5, n)
			assert.Equal(t, "ABCDE", buf.String())

			ids, err := store.Streams()
			require.NoError(t, err)
			assert.Equal(t, []string{dst.ID()}, ids)
		})
	}
}

func TestStoreKeepsStreamsApart(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)

			a := store.Destination("same.bin")
			b := store.Destination("same.bin")
			require.NotEqual(t, a.ID(), b.ID())

			sa, err := a.Open()
			require.NoError(t, err)
			sb, err := b.Open()
			require.NoError(t, err)

			// interleaved writes
			sa.Write([]byte("a1"))
			sb.Write([]byte("b1"))
			sa.Write([]byte("a2"))
			sb.Write([]byte("b2"))
			for _, s := range []interface{ Flush() error }{sa, sb} {
				require.NoError(t, s.Flush())
			}
			sa.Close()
			sb.Close()

			var bufA, bufB bytes.Buffer
			_, err = store.ReadStream(a.ID(), &bufA)
			require.NoError(t, err)
			_, err = store.ReadStream(b.ID(), &bufB)
			require.NoError(t, err)
			assert.Equal(t, "a1a2", bufA.String())
			assert.Equal(t, "b1b2", bufB.String())

			ids, err := store.Streams()
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{a.ID(), b.ID()}, ids)
		})
	}
}

func TestWriteAfterClose(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)
			sink, err := store.Destination("x").Open()
			require.NoError(t, err)
			require.NoError(t, sink.Close())

			_, err = sink.Write([]byte("late"))
			assert.Error(t, err)
		})
	}
}

func TestEmptyStreamIsListedOnceFlushed(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)
			dst := store.Destination("empty")
			sink, err := dst.Open()
			require.NoError(t, err)
			require.NoError(t, sink.Flush())
			require.NoError(t, sink.Close())

			ids, err := store.Streams()
			require.NoError(t, err)
			assert.Contains(t, ids, dst.ID())

			var buf bytes.Buffer
			n, err := store.ReadStream(dst.ID(), &buf)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestUnflushedStreamIsNotListed(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)

			half := store.Destination("half.bin")
			sink, err := half.Open()
			require.NoError(t, err)
			_, err = sink.Write([]byte("partial"))
			require.NoError(t, err)

			ids, err := store.Streams()
			require.NoError(t, err)
			assert.Empty(t, ids, "stream still being written")

			// closed without Flush, as after a failed write
			require.NoError(t, sink.Close())
			ids, err = store.Streams()
			require.NoError(t, err)
			assert.Empty(t, ids, "abandoned stream")

			done := store.Destination("done.bin")
			ds, err := done.Open()
			require.NoError(t, err)
			ds.Write([]byte("whole"))
			require.NoError(t, ds.Flush())
			require.NoError(t, ds.Close())

			ids, err = store.Streams()
			require.NoError(t, err)
			assert.Equal(t, []string{done.ID()}, ids)
		})
	}
}

func TestAbandonedStreamKeepsItsBytes(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		require.NoError(t, err)

		dst := store.Destination("half.bin")
		sink, err := dst.Open()
		require.NoError(t, err)
		sink.Write([]byte("partial"))
		require.NoError(t, sink.Close())

		got, err := os.ReadFile(filepath.Join(dir, "."+dst.ID()+".part"))
		require.NoError(t, err)
		assert.Equal(t, "partial", string(got))

		_, err = os.Stat(store.Path(dst.ID()))
		assert.True(t, os.IsNotExist(err))
	})

	for _, kind := range []config.SinkKind{config.SinkLevelDB, config.SinkPebble} {
		t.Run(string(kind), func(t *testing.T) {
			store := openStore(t, kind)
			dst := store.Destination("half.bin")
			sink, err := dst.Open()
			require.NoError(t, err)
			sink.Write([]byte("part"))
			sink.Write([]byte("ial"))
			require.NoError(t, sink.Close())

			var buf bytes.Buffer
			_, err = store.ReadStream(dst.ID(), &buf)
			require.NoError(t, err)
			assert.Equal(t, "partial", buf.String())
		})
	}
}

func TestFileDestinationNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	dst := store.Destination("a.txt")
	require.NoError(t, os.WriteFile(store.Path(dst.ID()), []byte("keep"), 0o644))

	_, err = dst.Open()
	require.Error(t, err)

	got, err := os.ReadFile(filepath.Join(dir, dst.ID()))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(got))
}

func TestFileStoreUnavailableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewFileStore(filepath.Join(blocker, "out"))
	assert.Error(t, err)
}

func TestUniqueID(t *testing.T) {
	testCases := []struct {
		name   string
		prefix string
		suffix string
	}{
		{"report.pdf", "report_", ".pdf"},
		{"../../etc/passwd", "passwd_", ""},
		{`C:\Users\me\photo.jpg`, "photo_", ".jpg"},
		{"weird name!.tar", "weird_name__", ".tar"},
		{"", "stream_", ""},
		{".hidden", "stream_", ".hidden"},
		{"..config.yml", "config_", ".yml"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id := uniqueID(tc.name)
			assert.True(t, strings.HasPrefix(id, tc.prefix), id)
			assert.True(t, strings.HasSuffix(id, tc.suffix), id)
			assert.NotContains(t, id, "/")
			assert.NotContains(t, id, `\`)
			assert.NotEqual(t, id, uniqueID(tc.name))
		})
	}
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open("tape", t.TempDir())
	assert.Error(t, err)
}
