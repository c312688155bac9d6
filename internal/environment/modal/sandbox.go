package modal

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/modal-labs/libmodal/modal-go"
	"golang.org/x/sync/errgroup"

	"github.com/typeguard/typedsets/internal/environment"
)

// Approximate Modal list prices.
const (
	cpuSecondPrice    = 0.000463
	gibSecondPrice    = 0.000058
	maxCommandPreview = 100
)

// Sandbox is a running Modal sandbox.
type Sandbox struct {
	sandbox   *modal.Sandbox
	appName   string
	stopApp   bool
	startTime time.Time
	cpuCount  int
	memoryMiB int
}

// ID returns the sandbox ID.
func (s *Sandbox) ID() string {
	return s.sandbox.SandboxID
}

// CopyTo uploads a local file or directory tree to dst.
func (s *Sandbox) CopyTo(ctx context.Context, src, dst string) error {
	type upload struct{ local, remote string }
	var files []upload
	dirs := []string{path.Dir(dst)}

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		remote := path.Join(dst, filepath.ToSlash(rel))
		if d.IsDir() {
			dirs = append(dirs, remote)
			return nil
		}
		files = append(files, upload{local: p, remote: remote})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", src, err)
	}

	slog.Debug("uploading to modal sandbox", "sandbox_id", s.ID(), "src", src, "dst", dst, "files", len(files))

	mkdir := shellquote.Join(append([]string{"mkdir", "-p"}, dirs...)...)
	if code, err := s.run(ctx, mkdir); err != nil || code != 0 {
		return fmt.Errorf("creating directories under %s: exit %d: %v", dst, code, err)
	}
	for _, f := range files {
		if err := s.writeFile(ctx, f.local, f.remote); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sandbox) writeFile(ctx context.Context, local, remote string) error {
	content, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("reading %s: %w", local, err)
	}

	f, err := s.sandbox.Open(ctx, remote, "w")
	if err != nil {
		return fmt.Errorf("opening %s in sandbox: %w", remote, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", remote, err)
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", remote, err)
	}
	return f.Close()
}

// CopyFrom downloads the single file src to the local path dst.
func (s *Sandbox) CopyFrom(ctx context.Context, src, dst string) error {
	slog.Debug("downloading from modal sandbox", "sandbox_id", s.ID(), "src", src, "dst", dst)

	f, err := s.sandbox.Open(ctx, src, "r")
	if err != nil {
		return fmt.Errorf("opening %s in sandbox: %w", src, err)
	}
	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}
	return os.WriteFile(dst, content, 0o644)
}

// run executes a shell command and discards its output.
func (s *Sandbox) run(ctx context.Context, cmd string) (int, error) {
	return s.Exec(ctx, cmd, nil, nil, environment.ExecOptions{})
}

// Exec runs cmd under bash in the sandbox.
func (s *Sandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	params := &modal.SandboxExecParams{
		Env:     opts.Env,
		Timeout: opts.Timeout,
		Workdir: opts.WorkDir,
	}

	preview := cmd
	if len(preview) > maxCommandPreview {
		preview = preview[:maxCommandPreview] + "..."
	}
	slog.Debug("modal exec", "sandbox_id", s.ID(), "command", preview, "timeout", opts.Timeout)

	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, params)
	if err != nil {
		return -1, fmt.Errorf("executing command: %w", err)
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, process.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, process.Stderr)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Debug("modal exec output stream", "sandbox_id", s.ID(), "error", err)
	}

	code, err := process.Wait(ctx)
	if err != nil {
		return -1, fmt.Errorf("waiting for process: %w", err)
	}
	return code, nil
}

// Destroy terminates the sandbox and, when configured, stops its app.
func (s *Sandbox) Destroy(ctx context.Context) error {
	slog.Debug("terminating modal sandbox", "sandbox_id", s.ID(), "app", s.appName)

	if err := s.sandbox.Terminate(ctx); err != nil && !isGone(err.Error()) {
		return fmt.Errorf("terminating sandbox: %w", err)
	}
	if !s.stopApp {
		return nil
	}

	// modal-go has no AppStop.
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return fmt.Errorf("stopping app %s: modal CLI not found", s.appName)
	}
	out, err := exec.CommandContext(ctx, modalPath, "app", "stop", s.appName).CombinedOutput()
	if err != nil && !isGone(string(out)) {
		return fmt.Errorf("stopping app %s: %s", s.appName, strings.TrimSpace(string(out)))
	}
	return nil
}

func isGone(msg string) bool {
	for _, s := range []string{"already terminated", "already stopped", "not found", "Could not find"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Cost estimates the sandbox's cost from its lifetime.
func (s *Sandbox) Cost() float64 {
	seconds := time.Since(s.startTime).Seconds()
	return seconds * (float64(s.cpuCount)*cpuSecondPrice + float64(s.memoryMiB)/1024*gibSecondPrice)
}
