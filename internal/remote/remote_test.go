package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/pullpipe/internal/protocol"
	"github.com/1ureka/pullpipe/internal/stream"
	"github.com/1ureka/pullpipe/internal/transport"
)

// mockConn is one end of an in-memory link. Packets are re-encoded on the
// way through so both sides see exactly what the wire would carry.
type mockConn struct {
	in   chan []byte
	peer *mockConn
	done chan struct{}
	once sync.Once
}

var _ transport.Conn = (*mockConn)(nil)

func mockConns() (a, b *mockConn) {
	a = &mockConn{in: make(chan []byte, 8), done: make(chan struct{})}
	b = &mockConn{in: make(chan []byte, 8), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (m *mockConn) Send(ctx context.Context, pkt *protocol.Packet) error {
	select {
	case m.peer.in <- protocol.Encode(pkt):
		return nil
	case <-m.done:
		return transport.ErrClosed
	case <-m.peer.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockConn) Recv(ctx context.Context) (*protocol.Packet, error) {
	select {
	case data := <-m.in:
		return protocol.Decode(data)
	case <-m.done:
		return nil, transport.ErrClosed
	case <-m.peer.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockConn) RemoteAddr() string { return "mock" }

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

// memSink collects everything written into a buffer.
type memSink struct {
	bytes.Buffer
	closed bool
}

func (s *memSink) Flush() error { return nil }
func (s *memSink) Close() error { s.closed = true; return nil }

// faultySource serves good packets, then fails at failAt.
type faultySource struct {
	packets [][]byte
	failAt  uint64

	mu     sync.Mutex
	closes []bool
}

func (f *faultySource) ReadPacket(_ context.Context, index uint64) ([]byte, error) {
	if index == f.failAt {
		return nil, errors.New("disk on fire")
	}
	if index >= uint64(len(f.packets)) {
		return nil, io.EOF
	}
	return f.packets[index], nil
}

func (f *faultySource) Close(_ context.Context, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, success)
	return nil
}

type serveResult struct {
	success bool
	err     error
}

func startServe(ctx context.Context, conn transport.Conn, name string, src stream.PacketSource) <-chan serveResult {
	out := make(chan serveResult, 1)
	go func() {
		if err := Offer(ctx, conn, name, false); err != nil {
			out <- serveResult{err: err}
			return
		}
		ok, err := Serve(ctx, conn, src)
		out <- serveResult{ok, err}
	}()
	return out
}

func TestTransferOverConn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	src := stream.NewReaderSource(strings.NewReader("ABCD"), stream.WithChunkSize(2))
	result := startServe(ctx, sendConn, "letters.txt", src)

	remoteSrc, err := Accept(ctx, recvConn)
	require.NoError(t, err)
	assert.Equal(t, "letters.txt", remoteSrc.Name())
	assert.False(t, remoteSrc.Compressed())

	sink := &memSink{}
	var rx stream.Receiver
	n, err := rx.Transfer(ctx, remoteSrc, stream.DestinationFunc(func() (stream.Sink, error) { return sink, nil }))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, "ABCD", sink.String())
	assert.True(t, sink.closed)

	res := <-result
	require.NoError(t, res.err)
	assert.True(t, res.success)
	assert.True(t, src.Succeeded())
	assert.EqualValues(t, 2, src.Served())
}

func TestOfferCarriesCompression(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	require.NoError(t, Offer(ctx, sendConn, "packed.bin", true))

	remoteSrc, err := Accept(ctx, recvConn)
	require.NoError(t, err)
	assert.Equal(t, "packed.bin", remoteSrc.Name())
	assert.True(t, remoteSrc.Compressed())
}

func TestEmptyStreamOverConn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	src := stream.NewReaderSource(strings.NewReader(""))
	result := startServe(ctx, sendConn, "", src)

	remoteSrc, err := Accept(ctx, recvConn)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, remoteSrc.Name())

	sink := &memSink{}
	var rx stream.Receiver
	n, err := rx.Transfer(ctx, remoteSrc, stream.DestinationFunc(func() (stream.Sink, error) { return sink, nil }))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, sink.Len())

	res := <-result
	require.NoError(t, res.err)
	assert.True(t, res.success)
}

func TestZeroLengthPacketCrossesWire(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	src := &faultySource{packets: [][]byte{[]byte("A"), {}, []byte("B")}, failAt: 99}
	result := startServe(ctx, sendConn, "gaps", src)

	remoteSrc, err := Accept(ctx, recvConn)
	require.NoError(t, err)

	p, err := remoteSrc.ReadPacket(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Empty(t, p)

	_, err = remoteSrc.ReadPacket(ctx, 3)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, remoteSrc.Close(ctx, true))
	res := <-result
	require.NoError(t, res.err)
	assert.True(t, res.success)
}

func TestRemoteFaultStopsTransfer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	src := &faultySource{packets: [][]byte{[]byte("AB"), []byte("CD")}, failAt: 1}
	result := startServe(ctx, sendConn, "broken", src)

	remoteSrc, err := Accept(ctx, recvConn)
	require.NoError(t, err)

	sink := &memSink{}
	var rx stream.Receiver
	n, err := rx.Transfer(ctx, remoteSrc, stream.DestinationFunc(func() (stream.Sink, error) { return sink, nil }))
	require.Error(t, err)
	assert.Equal(t, stream.SourceUnreachable, stream.KindOf(err))
	assert.EqualValues(t, 2, n)
	assert.Equal(t, "AB", sink.String())

	var fault *RemoteFault
	require.ErrorAs(t, err, &fault)
	assert.EqualValues(t, 1, fault.Index)
	assert.Contains(t, fault.Message, "disk on fire")

	// No handshake follows a source failure; the sender only learns about
	// it when the connection goes away.
	select {
	case res := <-result:
		t.Fatalf("Serve returned before hang-up: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	recvConn.Close()
	res := <-result
	assert.Error(t, res.err)
	assert.False(t, res.success)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []bool{false}, src.closes)
}

func TestAcceptRejectsNonOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	require.NoError(t, sendConn.Send(ctx, &protocol.Packet{Type: protocol.TypeData}))

	_, err := Accept(ctx, recvConn)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestSourceCloseIsOneShot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	src := &Source{conn: recvConn, name: "x"}

	require.NoError(t, src.Close(ctx, false))
	require.NoError(t, src.Close(ctx, true))

	pkt, err := sendConn.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeClose, pkt.Type)
	assert.False(t, pkt.Success())

	select {
	case data := <-sendConn.in:
		t.Fatalf("second CLOSE was sent: %v", data)
	default:
	}

	_, err = src.ReadPacket(ctx, 0)
	assert.ErrorIs(t, err, stream.ErrClosed)
}

func TestSourceRejectsMismatchedReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recvConn, sendConn := mockConns()
	src := &Source{conn: recvConn, name: "x"}

	go func() {
		if _, err := sendConn.Recv(ctx); err != nil {
			return
		}
		sendConn.Send(ctx, &protocol.Packet{Type: protocol.TypeData, Index: 7, Payload: []byte("?")})
	}()

	_, err := src.ReadPacket(ctx, 0)
	assert.ErrorIs(t, err, ErrProtocol)
}
