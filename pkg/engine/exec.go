package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/video-system/go-slam-capture/pkg/source"
	"github.com/video-system/go-slam-capture/pkg/timestamp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultStartTimeout    = 2 * time.Minute // vocabularies take a while to load
	defaultShutdownTimeout = 10 * time.Second
)

func init() {
	Register("exec", NewExec)
}

// frameHeader precedes the raw pixel bytes of every frame sent to the
// tracker process. A header with Shutdown set carries no payload.
type frameHeader struct {
	Seq       int64   `json:"seq,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Format    string  `json:"format,omitempty"`
	Size      int     `json:"size,omitempty"`
	Shutdown  bool    `json:"shutdown,omitempty"`
}

// reply is one line written by the tracker process
type reply struct {
	Ready bool      `json:"ready,omitempty"`
	OK    bool      `json:"ok"`
	Pose  []float64 `json:"pose,omitempty"`
	Error string    `json:"error,omitempty"`
}

// conn speaks the line-delimited protocol over the process pipes
type conn struct {
	w *bufio.Writer
	r *bufio.Reader
}

func newConn(w io.Writer, r io.Reader) *conn {
	return &conn{
		w: bufio.NewWriterSize(w, 1<<20),
		r: bufio.NewReader(r),
	}
}

func (c *conn) writeHeader(h frameHeader) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	return c.w.WriteByte('\n')
}

func (c *conn) readReply() (reply, error) {
	var rep reply
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(line, &rep); err != nil {
		return rep, fmt.Errorf("decode reply: %w", err)
	}
	return rep, nil
}

// awaitReady blocks until the process reports that its resources loaded
func (c *conn) awaitReady() error {
	rep, err := c.readReply()
	if err != nil {
		return err
	}
	if rep.Error != "" {
		return errors.New(rep.Error)
	}
	if !rep.Ready {
		return errors.New("tracker did not report ready")
	}
	return nil
}

func (c *conn) track(frame *source.Frame, ts timestamp.Timestamp) (Pose, error) {
	err := c.writeHeader(frameHeader{
		Seq:       frame.Sequence,
		Timestamp: ts.Seconds(),
		Width:     frame.Width,
		Height:    frame.Height,
		Format:    string(frame.Format),
		Size:      len(frame.Data),
	})
	if err != nil {
		return EmptyPose, err
	}
	if _, err := c.w.Write(frame.Data); err != nil {
		return EmptyPose, err
	}
	if err := c.w.Flush(); err != nil {
		return EmptyPose, err
	}

	rep, err := c.readReply()
	if err != nil {
		return EmptyPose, err
	}
	if !rep.OK {
		return EmptyPose, nil
	}
	if len(rep.Pose) != 16 {
		return EmptyPose, fmt.Errorf("pose has %d elements, want 16", len(rep.Pose))
	}
	var m [16]float64
	copy(m[:], rep.Pose)
	return NewPose(m), nil
}

func (c *conn) shutdown() error {
	if err := c.writeHeader(frameHeader{Shutdown: true}); err != nil {
		return err
	}
	return c.w.Flush()
}

// Exec runs the tracker as a child process and feeds it frames over stdin.
type Exec struct {
	cmd             *exec.Cmd
	stdin           io.WriteCloser
	conn            *conn
	logger          *zap.Logger
	shutdownTimeout time.Duration

	done   chan error
	exited atomic.Bool
}

// NewExec starts cfg.Command and waits until it reports ready
func NewExec(ctx context.Context, cfg Config) (Engine, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: exec engine needs a command", ErrInitialization)
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	args := append([]string{}, cfg.Args...)
	args = append(args,
		"--vocab", cfg.Vocabulary,
		"--settings", cfg.Settings,
		"--mode", cfg.Mode.String(),
	)
	if cfg.EnableViewer {
		args = append(args, "--viewer")
	}

	logger := cfg.Logger.With(zap.String("engine", "exec"), zap.String("command", cfg.Command))

	// Not CommandContext: the tracker must live until Shutdown.
	cmd := exec.Command(cfg.Command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}
	// Own the read end so Wait cannot close it under an in-flight read.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("%w: start %s: %v", ErrInitialization, cfg.Command, err)
	}
	stdoutW.Close()

	e := &Exec{
		cmd:             cmd,
		stdin:           stdin,
		conn:            newConn(stdin, stdoutR),
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		done:            make(chan error, 1),
	}

	go e.logStderr(bufio.NewScanner(stderr))
	go func() {
		err := cmd.Wait()
		e.exited.Store(true)
		stdoutR.Close()
		e.done <- err
	}()

	ready := make(chan error, 1)
	go func() { ready <- e.conn.awaitReady() }()

	select {
	case err = <-ready:
	case <-time.After(cfg.StartTimeout):
		err = fmt.Errorf("not ready after %s", cfg.StartTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		e.kill()
		return nil, fmt.Errorf("%w: %s: %v", ErrInitialization, cfg.Command, err)
	}

	logger.Info("tracker process ready", zap.Int("pid", cmd.Process.Pid), zap.Stringer("mode", cfg.Mode))
	return e, nil
}

// logStderr forwards tracker output to the log
func (e *Exec) logStderr(scanner *bufio.Scanner) {
	for scanner.Scan() {
		e.logger.Info("tracker", zap.String("line", scanner.Text()))
	}
}

func (e *Exec) Track(ctx context.Context, frame *source.Frame, ts timestamp.Timestamp) (Pose, error) {
	if e.exited.Load() {
		return EmptyPose, ErrTerminated
	}
	pose, err := e.conn.track(frame, ts)
	if err != nil {
		if e.exited.Load() || isPipeErr(err) {
			return EmptyPose, fmt.Errorf("%w: %v", ErrTerminated, err)
		}
		return EmptyPose, err
	}
	return pose, nil
}

// Shutdown asks the tracker to stop, then escalates to SIGINT and kill.
func (e *Exec) Shutdown(ctx context.Context) error {
	if !e.exited.Load() {
		if err := e.conn.shutdown(); err != nil {
			e.logger.Warn("send shutdown", zap.Error(err))
		}
	}
	e.stdin.Close()

	select {
	case err := <-e.done:
		return exitErr(err)
	case <-time.After(e.shutdownTimeout):
	case <-ctx.Done():
	}

	e.logger.Warn("tracker did not exit, interrupting")
	e.cmd.Process.Signal(os.Interrupt)
	select {
	case err := <-e.done:
		return exitErr(err)
	case <-time.After(e.shutdownTimeout):
	}

	e.logger.Warn("tracker did not exit, killing")
	return e.kill()
}

func (e *Exec) kill() error {
	e.stdin.Close()
	e.cmd.Process.Kill()
	<-e.done
	return nil
}

func exitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("tracker exited: %w", err)
}

func isPipeErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}
