// Package engine runs the external analysis binary, one process per request.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"chessanalysis/internal/server/core"

	"github.com/rs/zerolog"
)

const (
	DefaultDepth   = 3
	DefaultTimeout = 30 * time.Second

	// waitDelay bounds how long Wait keeps reading pipes after the process is gone
	waitDelay = time.Second
)

// ErrInvalidRequest is returned before any process is spawned
var ErrInvalidRequest = errors.New("invalid analysis request")

// Config configures a Gateway
type Config struct {
	Binary  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Gateway spawns the engine binary for each analysis and translates its
// exit status and output into a result or a *Failure
type Gateway struct {
	binary  string
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a gateway for the given engine binary
func New(cfg Config) (*Gateway, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("engine binary path required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Gateway{
		binary:  cfg.Binary,
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("component", "engine").Logger(),
	}, nil
}

// Timeout returns the hard deadline applied by Analyze
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// Analyze evaluates a position using the gateway's default timeout
func (g *Gateway) Analyze(ctx context.Context, req core.AnalysisRequest) (*core.AnalysisResult, error) {
	return g.AnalyzeWithTimeout(ctx, req, g.timeout)
}

// AnalyzeWithTimeout spawns the engine as
// `<binary> --fen <fingerprint> --depth <depth>` and waits for it to exit or
// for the deadline, whichever comes first. On the deadline the process group
// is killed and reaped before a KindTimeout failure is returned.
// Cancelling ctx kills the process the same way and returns ctx.Err().
func (g *Gateway) AnalyzeWithTimeout(ctx context.Context, req core.AnalysisRequest, timeout time.Duration) (*core.AnalysisResult, error) {
	if req.Depth < 1 {
		return nil, fmt.Errorf("%w: depth must be at least 1, got %d", ErrInvalidRequest, req.Depth)
	}
	if timeout <= 0 {
		timeout = g.timeout
	}

	cmd := exec.Command(g.binary, "--fen", req.Fingerprint, "--depth", strconv.Itoa(req.Depth))
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &stderrLog{log: g.log}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	g.log.Debug().
		Str("fen", req.Fingerprint).
		Int("depth", req.Depth).
		Msg("spawning engine")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &Failure{Kind: KindProcess, ExitCode: -1, Stderr: err.Error()}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		g.log.Debug().
			Int("pid", cmd.Process.Pid).
			Dur("elapsed", time.Since(start)).
			Int("stdout_bytes", stdout.Len()).
			Msg("engine exited")
		return g.finish(req, err, stdout.Bytes(), stderr.String())

	case <-timer.C:
		g.terminate(cmd, done)
		return nil, &Failure{Kind: KindTimeout, Timeout: timeout}

	case <-ctx.Done():
		g.terminate(cmd, done)
		return nil, ctx.Err()
	}
}

// terminate kills the process group and waits for Wait to reap the child.
// The exit status is discarded so a killed process yields no result.
func (g *Gateway) terminate(cmd *exec.Cmd, done <-chan error) {
	pid := cmd.Process.Pid
	if err := killProcessGroup(cmd); err != nil {
		g.log.Warn().Err(err).Int("pid", pid).Msg("failed to kill engine process")
	}
	<-done
	g.log.Debug().Int("pid", pid).Msg("engine process terminated")
}

// finish classifies a completed process
func (g *Gateway) finish(req core.AnalysisRequest, waitErr error, stdout []byte, stderr string) (*core.AnalysisResult, error) {
	// Output was complete enough for the process to exit 0; a stray
	// descendant holding the pipe open does not make it a failure.
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &Failure{Kind: KindProcess, ExitCode: exitErr.ExitCode(), Stderr: stderr}
		}
		detail := strings.TrimSpace(strings.Join([]string{stderr, waitErr.Error()}, " "))
		return nil, &Failure{Kind: KindProcess, ExitCode: -1, Stderr: detail}
	}

	result, err := decodeOutput(stdout, req)
	if err != nil {
		g.log.Warn().
			Err(err).
			Int("stdout_bytes", len(stdout)).
			Msg("engine output did not decode")
		return nil, &Failure{Kind: KindMalformed, Raw: string(stdout)}
	}

	return result, nil
}

// stderrLog accumulates the error stream and mirrors it to the debug log
type stderrLog struct {
	buf bytes.Buffer
	log zerolog.Logger
}

func (w *stderrLog) Write(p []byte) (int, error) {
	w.buf.Write(p)
	w.log.Debug().Str("stream", "stderr").Msg(strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

func (w *stderrLog) String() string {
	return w.buf.String()
}
