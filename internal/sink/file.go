package sink

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/1ureka/pullpipe/internal/stream"
)

const fileBufferSize = 64 * 1024

// FileStore writes every stream to its own file under Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) Destination(name string) Destination {
	id := uniqueID(name)
	return &fileDestination{id: id, path: filepath.Join(s.Dir, id)}
}

func (s *FileStore) ReadStream(id string, w io.Writer) (int64, error) {
	f, err := os.Open(filepath.Join(s.Dir, filepath.Base(id)))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func (s *FileStore) Streams() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the file a destination id maps to.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.Dir, filepath.Base(id))
}

type fileDestination struct {
	id   string
	path string
}

func (d *fileDestination) ID() string { return d.id }

// Open creates a hidden ".<id>.part" file exclusively; the stream only
// appears under its id once Flush succeeds. An existing file is never
// overwritten.
func (d *fileDestination) Open() (stream.Sink, error) {
	if _, err := os.Lstat(d.path); err == nil {
		return nil, errors.Wrapf(os.ErrExist, "open %s", d.path)
	}
	part := partPath(d.path)
	f, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f, w: bufio.NewWriterSize(f, fileBufferSize), part: part, path: d.path}, nil
}

func partPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".part")
}

type fileSink struct {
	f     *os.File
	w     *bufio.Writer
	part  string // name while writing
	path  string // name once finalized
	final bool

	closed bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.w.Write(p)
}

// Flush drains the buffer, fsyncs the file and moves it to its final name.
func (s *fileSink) Flush() error {
	if s.closed {
		return os.ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return err
	}
	if !s.final {
		if err := os.Rename(s.part, s.path); err != nil {
			return errors.Wrap(err, "finalize stream")
		}
		s.final = true
	}
	return nil
}

// Close hands any buffered bytes to the OS and closes the file. A sink closed
// without a successful Flush keeps its ".part" name. Calls after the first
// are no-ops.
func (s *fileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	ferr := s.w.Flush()
	cerr := s.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
