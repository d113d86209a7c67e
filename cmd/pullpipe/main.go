// pullpipe: CLI entry point.
//
// A receiver listens for senders on a WebSocket endpoint and pulls each
// offered file packet by packet into a local store (plain files, LevelDB or
// Pebble). Packets ride either the WebSocket itself or a WebRTC DataChannel
// negotiated over it.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -listen, -sink, -out, -url, -file, ...).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/anacrolix/tagflag"
	"github.com/pterm/pterm"

	"github.com/1ureka/pullpipe/internal/app"
	"github.com/1ureka/pullpipe/internal/config"
	"github.com/1ureka/pullpipe/internal/signaling"
	"github.com/1ureka/pullpipe/internal/util"
)

var version = "dev"

var flags = struct {
	Role      string        `help:"receive or send; omit for interactive mode"`
	Transport string        `help:"packet carrier: ws or webrtc"`
	Listen    string        `help:"receiver: address to listen on"`
	Pin       string        `help:"PIN required on /ws; receiver generates one when empty and -secure is set"`
	Secure    bool          `help:"receiver: generate a random PIN"`
	Sink      string        `help:"receiver: file, leveldb or pebble"`
	Out       string        `help:"receiver: output directory"`
	History   int           `help:"receiver: finished transfers kept for /transfers"`
	Url       string        `help:"sender: receiver address, e.g. ws://host:7000"`
	File      string        `help:"sender: file to send"`
	Name      string        `help:"sender: stream name announced to the receiver"`
	Chunk     tagflag.Bytes `help:"sender: packet payload size"`
	Compress  bool          `help:"sender: gzip the stream in transit, the receiver stores it decompressed"`
	Debug     bool          `help:"enable debug logging"`
}{
	Transport: string(config.TransportWS),
	Listen:    config.Default().ListenAddr,
	Sink:      string(config.SinkFile),
	Out:       config.Default().OutDir,
	History:   config.Default().HistorySize,
	Chunk:     tagflag.Bytes(config.DefaultChunkSize),
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tagflag.Parse(&flags)

	if flags.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("pullpipe v%s", version))
	pterm.Println()

	cfg := config.Default()
	cfg.Role = config.Role(flags.Role)
	cfg.Transport = config.Transport(flags.Transport)
	cfg.ListenAddr = flags.Listen
	cfg.PIN = flags.Pin
	cfg.Sink = config.SinkKind(flags.Sink)
	cfg.OutDir = flags.Out
	cfg.HistorySize = flags.History
	cfg.URL = flags.Url
	cfg.File = flags.File
	cfg.Name = flags.Name
	cfg.ChunkSize = int(flags.Chunk)
	cfg.Compress = flags.Compress
	cfg.Progress = !flags.Debug
	cfg.Debug = flags.Debug

	if cfg.Role == "" {
		runInteractive(&cfg)
	}
	if cfg.Role == config.RoleReceive && cfg.PIN == "" && flags.Secure {
		cfg.PIN = signaling.GeneratePIN(4)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.StartStatsReporter(ctx)

	switch cfg.Role {
	case config.RoleReceive:
		runReceiver(ctx, cfg)
	case config.RoleSend:
		runSender(ctx, cfg)
	}
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive fills in the role-specific fields with prompts when no
// -role flag is provided.
func runInteractive(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Receive: accept files from senders", "Send:    offer a file to a receiver"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	transport, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{string(config.TransportWS), string(config.TransportWebRTC)}).
		WithDefaultText("Packet carrier").
		Show()
	cfg.Transport = config.Transport(transport)
	pterm.Println()

	if strings.HasPrefix(role, "Receive") {
		cfg.Role = config.RoleReceive
		cfg.ListenAddr = askText("Listen address", cfg.ListenAddr)
		cfg.OutDir = askText("Output directory", cfg.OutDir)
		cfg.PIN = signaling.GeneratePIN(4)
		return
	}

	cfg.Role = config.RoleSend
	cfg.URL = askURL()
	cfg.PIN = askText("PIN (empty if none)", "")
	cfg.File = askFile()
	cfg.Compress, _ = pterm.DefaultInteractiveConfirm.
		WithDefaultText("Compress with gzip").
		Show()
}

// runReceiver serves senders until interrupted.
func runReceiver(ctx context.Context, cfg config.Config) {
	rx, err := app.NewReceiver(cfg)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	addr, err := rx.Start()
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.DefaultBox.WithTitle("pullpipe receiver").Println(
		fmt.Sprintf("Listen    : %s\nPIN       : %s\nTransport : %s\nSink      : %s (%s)",
			addr, orNone(cfg.PIN), cfg.Transport, cfg.Sink, cfg.OutDir))
	pterm.Println()
	util.LogSuccess("waiting for senders on ws://%s/ws", addr)

	if err := rx.Serve(ctx); err != nil {
		util.LogError("receiver stopped: %v", err)
		os.Exit(1)
	}
	util.LogInfo("receiver stopped")
}

// runSender offers one file and exits when the receiver is done with it.
func runSender(ctx context.Context, cfg config.Config) {
	sum, err := app.Send(ctx, cfg)
	if err != nil {
		util.LogError("transfer of %s failed after %s: %v", cfg.File, util.FormatBytes(float64(sum.Bytes)), err)
		os.Exit(1)
	}
	if cfg.Compress {
		util.LogSuccess("receiver accepted %s: %s as %s gzip in %d packets", sum.Name,
			util.FormatBytes(float64(sum.Bytes)), util.FormatBytes(float64(sum.Wire)), sum.Packets)
		return
	}
	util.LogSuccess("receiver accepted %s: %s in %d packets", sum.Name, util.FormatBytes(float64(sum.Bytes)), sum.Packets)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// askText prompts for a free-form value, falling back to def on empty input.
func askText(prompt, def string) string {
	text := prompt
	if def != "" {
		text = fmt.Sprintf("%s [%s]", prompt, def)
	}
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(text).
		Show()
	pterm.Println()
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return def
}

// askURL prompts for a receiver address until a valid one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Receiver address (e.g. ws://192.168.1.20:7000)").
			Show()
		pterm.Println()

		if _, err := config.NormalizeURL(raw, ""); err == nil {
			return strings.TrimSpace(raw)
		}
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askFile prompts for a readable regular file until one is entered.
func askFile() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("File to send").
			Show()
		pterm.Println()

		path := strings.TrimSpace(raw)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
		util.LogWarning("not a readable file: %s", path)
	}
}
