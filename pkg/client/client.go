// Package client talks to a promptline driver over its line protocol,
// either as a child process or over any reader/writer pair.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/record"
)

// ErrStopped is returned by calls made after Stop.
var ErrStopped = errors.New("client stopped")

// StopTimeout bounds how long Stop waits for a child process to exit.
const StopTimeout = 10 * time.Second

// Client sends requests one at a time. It is safe for concurrent use; calls
// are serialized.
type Client struct {
	mu      sync.Mutex
	r       *bufio.Reader
	w       io.Writer
	closer  io.Closer
	cmd     *exec.Cmd
	info    *llm.Info
	stopped bool
}

// New creates a client reading responses from r and writing requests to w.
func New(r io.Reader, w io.Writer) *Client {
	return &Client{r: bufio.NewReader(r), w: w}
}

// Start launches binary with args and --announce, and reads the driver's
// announcement.
func Start(ctx context.Context, binary string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, binary, append(args, "--announce")...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("could not open driver stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not open driver stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start driver %s: %w", binary, err)
	}

	c := New(stdout, stdin)
	c.cmd = cmd
	c.closer = stdin

	if _, err := c.ReadInfo(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return c, nil
}

// ReadInfo reads the announcement line. It must be called before the first
// request, and only against a driver configured to announce itself.
func (c *Client) ReadInfo() (llm.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.readRecord()
	if err != nil {
		return llm.Info{}, fmt.Errorf("could not read driver info: %w", err)
	}
	info, err := llm.ParseInfo(rec)
	if err != nil {
		return llm.Info{}, fmt.Errorf("could not parse driver info: %w", err)
	}
	c.info = &info
	return info, nil
}

// Info returns the announcement read by ReadInfo or Start.
func (c *Client) Info() (llm.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info == nil {
		return llm.Info{}, false
	}
	return *c.info, true
}

// Run sends one request built from opts and waits for its response.
// An error response is returned as *llm.RemoteError, which matches the
// llm sentinel errors with errors.Is.
func (c *Client) Run(opts llm.Options) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, ErrStopped
	}

	if err := c.writeLine(record.Encode(opts.Record())); err != nil {
		return nil, err
	}
	rec, err := c.readRecord()
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	return llm.ParseResponse(rec)
}

// RunInstruction wraps opts.InputText with WrapInstruction before running it.
func (c *Client) RunInstruction(opts llm.Options) (*llm.Response, error) {
	opts.InputText = WrapInstruction(opts.InputText)
	return c.Run(opts)
}

// Stop ends the session with quit(); and, for a started driver, waits for
// the process to exit.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	err := c.writeLine("quit();")
	if c.closer != nil {
		_ = c.closer.Close()
	}
	if c.cmd == nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case werr := <-done:
		if werr != nil {
			return fmt.Errorf("driver exited: %w", werr)
		}
		return err
	case <-time.After(StopTimeout):
		_ = c.cmd.Process.Kill()
		<-done
		return fmt.Errorf("driver did not exit within %s", StopTimeout)
	}
}

func (c *Client) writeLine(line string) error {
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if f, ok := c.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("could not flush request: %w", err)
		}
	}
	return nil
}

func (c *Client) readRecord() (*record.Record, error) {
	line, err := c.r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return nil, err
	}
	return record.Decode(strings.TrimSuffix(line, "\n"))
}
