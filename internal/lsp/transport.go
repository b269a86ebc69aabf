package lsp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
)

// Dialer opens a fresh message stream to an analyzer. Dial is called once
// per connection attempt, including reconnects.
type Dialer interface {
	Dial(ctx context.Context) (jsonrpc2.ObjectStream, error)
}

// framed wraps a byte stream in Content-Length framing.
func framed(rwc io.ReadWriteCloser) jsonrpc2.ObjectStream {
	return jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
}

// CommandDialer starts the analyzer as a child process and talks to it over
// its stdin and stdout.
type CommandDialer struct {
	Command []string
	Dir     string
	Env     []string
	// Stderr receives the child's stderr; nil discards it.
	Stderr io.Writer
}

func (d CommandDialer) Dial(ctx context.Context) (jsonrpc2.ObjectStream, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("%w: empty analyzer command", ErrTransport)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Not CommandContext: the process outlives the dial.
	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	cmd.Dir = d.Dir
	if d.Env != nil {
		cmd.Env = d.Env
	}
	cmd.Stderr = d.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrTransport, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrTransport, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrTransport, d.Command[0], err)
	}
	log.Infof("started analyzer %q (pid %d)", d.Command[0], cmd.Process.Pid)
	return framed(&processPipe{cmd: cmd, stdin: stdin, stdout: stdout}), nil
}

// processPipe joins a child's stdio into one ReadWriteCloser.
type processPipe struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	once   sync.Once
}

func (p *processPipe) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *processPipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes stdin and gives the child a moment to exit before killing it.
func (p *processPipe) Close() error {
	p.once.Do(func() {
		_ = p.stdin.Close()
		done := make(chan struct{})
		go func() {
			_ = p.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			log.Warningf("analyzer %d did not exit, killing", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
			<-done
		}
	})
	return nil
}

// TCPDialer connects to an analyzer listening on a socket.
type TCPDialer struct {
	Network string // defaults to "tcp"
	Address string
}

func (d TCPDialer) Dial(ctx context.Context) (jsonrpc2.ObjectStream, error) {
	network := d.Network
	if network == "" {
		network = "tcp"
	}
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, network, d.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return framed(conn), nil
}

// WebSocketDialer connects to an analyzer served over a websocket, one
// JSON-RPC message per frame.
type WebSocketDialer struct {
	URL    string
	Header http.Header
}

func (d WebSocketDialer) Dial(ctx context.Context) (jsonrpc2.ObjectStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return jsonrpc2ws.NewObjectStream(conn), nil
}

// StreamDialer adapts any function producing a byte stream, such as one end
// of net.Pipe connected to an in-process analyzer.
type StreamDialer func(ctx context.Context) (io.ReadWriteCloser, error)

func (f StreamDialer) Dial(ctx context.Context) (jsonrpc2.ObjectStream, error) {
	rwc, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return framed(rwc), nil
}

// DialerFor picks a dialer from an analyzer address or command line.
// Addresses starting with ws:// or wss:// use websockets, unix:// a unix
// socket, anything else with a non-empty address plain TCP.
func DialerFor(command []string, address string) (Dialer, error) {
	switch {
	case strings.HasPrefix(address, "ws://"), strings.HasPrefix(address, "wss://"):
		return WebSocketDialer{URL: address}, nil
	case strings.HasPrefix(address, "unix://"):
		return TCPDialer{Network: "unix", Address: strings.TrimPrefix(address, "unix://")}, nil
	case address != "":
		return TCPDialer{Address: address}, nil
	case len(command) > 0:
		return CommandDialer{Command: command}, nil
	}
	return nil, fmt.Errorf("%w: no analyzer command or address", ErrTransport)
}
