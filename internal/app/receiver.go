// Package app wires the pieces together for the two roles: a Receiver that
// accepts senders and pulls their streams into a store, and Send, which
// offers one file to a receiver.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/pullpipe/internal/config"
	"github.com/1ureka/pullpipe/internal/remote"
	"github.com/1ureka/pullpipe/internal/signaling"
	"github.com/1ureka/pullpipe/internal/sink"
	"github.com/1ureka/pullpipe/internal/stream"
	"github.com/1ureka/pullpipe/internal/transport"
	"github.com/1ureka/pullpipe/internal/util"
)

// openTimeout bounds the wait for a sender's OPEN frame.
const openTimeout = 30 * time.Second

// Receiver accepts any number of concurrent senders. Each connection carries
// exactly one stream.
type Receiver struct {
	cfg     config.Config
	store   sink.Store
	history *History
	server  *signaling.Server

	wg sync.WaitGroup
}

// NewReceiver opens the configured store. Call Start, then Serve.
func NewReceiver(cfg config.Config) (*Receiver, error) {
	store, err := sink.Open(cfg.Sink, cfg.OutDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", cfg.Sink, err)
	}
	history, err := NewHistory(cfg.HistorySize)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create history: %w", err)
	}

	r := &Receiver{
		cfg:     cfg,
		store:   store,
		history: history,
		server:  signaling.NewServer(cfg.ListenAddr, cfg.PIN),
	}
	r.server.Handle("/transfers", history)
	r.server.Handle("/streams/", http.HandlerFunc(r.serveStreams))
	return r, nil
}

// History exposes finished transfers.
func (r *Receiver) History() *History { return r.history }

// Store exposes the backing store.
func (r *Receiver) Store() sink.Store { return r.store }

// Start binds the listener and returns its address.
func (r *Receiver) Start() (net.Addr, error) {
	return r.server.Start()
}

// Serve accepts senders until ctx is cancelled, then waits for in-flight
// transfers and closes the store.
func (r *Receiver) Serve(ctx context.Context) error {
	var err error
	for {
		var in signaling.Incoming
		in, err = r.server.Accept(ctx)
		if err != nil {
			break
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(ctx, in)
		}()
	}

	r.server.Close()
	r.wg.Wait()
	if cerr := r.store.Close(); cerr != nil {
		util.LogWarning("failed to close store: %v", cerr)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, signaling.ErrServerClosed) {
		return nil
	}
	return err
}

// handle runs one transfer from connection to history record.
func (r *Receiver) handle(ctx context.Context, in signaling.Incoming) {
	conn, err := r.connect(ctx, in)
	if err != nil {
		util.LogWarning("sender %s: %v", in.Peer, err)
		return
	}
	defer conn.Close()

	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	src, err := remote.Accept(openCtx, conn)
	cancel()
	if err != nil {
		util.LogWarning("sender %s: %v", in.Peer, err)
		return
	}

	dst := r.store.Destination(src.Name())
	if src.Compressed() {
		dst = sink.Decompressing(dst)
	}
	tag := util.Tag(util.TransferID(in.Peer, src.Name()))
	tag.Info("incoming stream", "name", src.Name(), "peer", in.Peer, "transport", string(in.Transport),
		"gzip", src.Compressed(), "id", dst.ID())

	rx := stream.Receiver{Tag: tag}
	n, err := rx.Transfer(ctx, src, dst)

	rec := Record{
		ID:        dst.ID(),
		Name:      src.Name(),
		Peer:      in.Peer,
		Transport: string(in.Transport),
		Gzip:      src.Compressed(),
		Bytes:     n,
		State:     stream.StateOf(err).String(),
		Finished:  time.Now(),
	}
	if err != nil {
		rec.Kind = stream.KindOf(err).String()
		rec.Error = err.Error()
	}
	r.history.Add(rec)
}

// connect turns an upgraded WebSocket into a packet connection.
func (r *Receiver) connect(ctx context.Context, in signaling.Incoming) (transport.Conn, error) {
	switch in.Transport {
	case config.TransportWebRTC:
		tr, err := signaling.EstablishAsReceiver(ctx, in.WS, r.cfg.ICEServers)
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return transport.NewWSConn(in.WS), nil
	}
}

// serveStreams answers GET /streams/ with the stored ids and
// GET /streams/<id> with the stream's bytes.
func (r *Receiver) serveStreams(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids, err := r.store.Streams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := strings.TrimPrefix(req.URL.Path, "/streams/")
	if id == "" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ids)
		return
	}
	if !slices.Contains(ids, id) {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := r.store.ReadStream(id, w); err != nil {
		util.LogWarning("failed to serve stream %s: %v", id, err)
	}
}
