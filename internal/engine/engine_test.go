package engine

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/typeguard/typedsets/internal/environment"
	"github.com/typeguard/typedsets/internal/models"
)

var goLang = models.TargetLanguage{DisplayName: "Go", Names: []string{"golang", "go"}, Extension: "go"}

func TestArgs(t *testing.T) {
	cfg := models.EngineConfig{}
	got := Args(cfg, "data", "go/bitcoin.go", goLang)
	want := []string{"data", "-o", "go/bitcoin.go"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %v, want %v", got, want)
	}

	cfg.LangFlag = "--lang"
	got = Args(cfg, "data", "go/bitcoin.go", goLang)
	want = []string{"data", "--lang", "go", "-o", "go/bitcoin.go"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args with lang flag = %v, want %v", got, want)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProcessEngineGenerate(t *testing.T) {
	// Writes "<input>" into the file after -o.
	script := writeScript(t, `in="$1"; shift; [ "$1" = "-o" ] || exit 9; echo "generated from $in" > "$2"`)

	e := NewProcessEngine(models.EngineConfig{Name: "fake", TimeoutSec: 10}, []string{script}, "1.0.0")
	out := filepath.Join(t.TempDir(), "go", "sample.go")

	if err := e.Generate(context.Background(), Request{InputDir: "/data/sample", OutputFile: out, Language: goLang}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "generated from /data/sample" {
		t.Errorf("unexpected output %q", data)
	}
	if e.Version() != "1.0.0" || e.Name() != "fake" {
		t.Errorf("unexpected identity %s %s", e.Name(), e.Version())
	}
}

func TestProcessEngineFailure(t *testing.T) {
	script := writeScript(t, `echo "cannot infer types" >&2; exit 1`)

	e := NewProcessEngine(models.EngineConfig{Name: "fake"}, []string{script}, "1.0.0")
	err := e.Generate(context.Background(), Request{InputDir: "in", OutputFile: filepath.Join(t.TempDir(), "x.go"), Language: goLang})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "cannot infer types") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestProcessEngineTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)

	e := NewProcessEngine(models.EngineConfig{Name: "fake", TimeoutSec: 0.1}, []string{script}, "1.0.0")
	err := e.Generate(context.Background(), Request{InputDir: "in", OutputFile: filepath.Join(t.TempDir(), "x.go"), Language: goLang})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

// fakeEnv records commands and emulates the filesystem with a map.
type fakeEnv struct {
	copiedIn  []string
	commands  []string
	output    string
	exitCode  int
	destroyed bool
}

func (f *fakeEnv) ID() string { return "fake" }

func (f *fakeEnv) CopyTo(ctx context.Context, src, dst string) error {
	f.copiedIn = append(f.copiedIn, src+"->"+dst)
	return nil
}

func (f *fakeEnv) CopyFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(f.output+" "+src), 0o644)
}

func (f *fakeEnv) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	f.commands = append(f.commands, cmd)
	if strings.HasPrefix(cmd, "rm ") {
		return 0, nil
	}
	if f.exitCode != 0 && stderr != nil {
		io.WriteString(stderr, "boom")
	}
	return f.exitCode, nil
}

func (f *fakeEnv) Destroy(ctx context.Context) error {
	f.destroyed = true
	return nil
}

func (f *fakeEnv) Cost() float64 { return 0.25 }

type fakeProvider struct {
	env     *fakeEnv
	pulled  string
	built   string
	created environment.CreateEnvironmentOptions
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) BuildImage(ctx context.Context, opts environment.BuildImageOptions) (string, error) {
	p.built = opts.ContextDir
	return opts.Tag, nil
}

func (p *fakeProvider) PullImage(ctx context.Context, imageRef string) error {
	p.pulled = imageRef
	return nil
}

func (p *fakeProvider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	p.created = opts
	return p.env, nil
}

func TestSandboxEngine(t *testing.T) {
	env := &fakeEnv{output: "code"}
	provider := &fakeProvider{env: env}
	cfg := models.EngineConfig{
		Name: "quicktype",
		Environment: models.EngineEnvironmentConfig{
			Type:    "docker",
			Image:   "node:20",
			Install: "npm install -g quicktype",
			CPUs:    2,
			Memory:  "1G",
		},
	}

	e, err := NewSandboxEngine(context.Background(), provider, cfg, []string{"quicktype"}, "15.0.0")
	if err != nil {
		t.Fatalf("NewSandboxEngine failed: %v", err)
	}
	if provider.pulled != "node:20" {
		t.Errorf("expected image pull, got %q", provider.pulled)
	}
	if provider.created.MemoryMB != 1024 || provider.created.CPUs != 2 {
		t.Errorf("unexpected resources %+v", provider.created)
	}
	if len(env.commands) != 1 || env.commands[0] != "npm install -g quicktype" {
		t.Fatalf("expected install command, got %v", env.commands)
	}

	out := filepath.Join(t.TempDir(), "go", "sample.go")
	if err := e.Generate(context.Background(), Request{InputDir: "/cache/sample", OutputFile: out, Language: goLang}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(env.copiedIn) != 1 || env.copiedIn[0] != "/cache/sample->/typedsets/1/in" {
		t.Errorf("unexpected copy-in %v", env.copiedIn)
	}
	wantCmd := "mkdir -p /typedsets/1/out && quicktype /typedsets/1/in -o /typedsets/1/out/sample.go"
	if env.commands[1] != wantCmd {
		t.Errorf("unexpected engine command\n got: %s\nwant: %s", env.commands[1], wantCmd)
	}
	if env.commands[2] != "rm -rf /typedsets/1" {
		t.Errorf("expected cleanup, got %s", env.commands[2])
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.Equal(data, []byte("code /typedsets/1/out/sample.go")) {
		t.Errorf("unexpected output %q", data)
	}

	if e.Cost() != 0.25 {
		t.Errorf("expected environment cost, got %f", e.Cost())
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !env.destroyed {
		t.Error("expected environment to be destroyed")
	}
}

func TestSandboxEngineFailure(t *testing.T) {
	env := &fakeEnv{}
	provider := &fakeProvider{env: env}
	cfg := models.EngineConfig{
		Name:        "quicktype",
		Environment: models.EngineEnvironmentConfig{Type: "modal", DockerfileDir: "/ctx"},
	}

	e, err := NewSandboxEngine(context.Background(), provider, cfg, []string{"quicktype"}, "15.0.0+build")
	if err != nil {
		t.Fatalf("NewSandboxEngine failed: %v", err)
	}
	if provider.built != "/ctx" {
		t.Errorf("expected image build from /ctx, got %q", provider.built)
	}
	if provider.created.ImageRef != "typedsets-engine:15.0.0-build" {
		t.Errorf("unexpected image ref %s", provider.created.ImageRef)
	}

	env.exitCode = 2
	err = e.Generate(context.Background(), Request{InputDir: "in", OutputFile: filepath.Join(t.TempDir(), "x.go"), Language: goLang})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected failure with stderr, got %v", err)
	}
}

func TestResolveVersion(t *testing.T) {
	dir := t.TempDir()
	v1 := filepath.Join(dir, "v1.json")
	v3 := filepath.Join(dir, "v3.json")
	os.WriteFile(v1, []byte(`{"lockfileVersion":1,"dependencies":{"quicktype":{"version":"12.0.1"}}}`), 0o644)
	os.WriteFile(v3, []byte(`{"lockfileVersion":3,"packages":{"":{"version":"0.0.0"},"node_modules/quicktype":{"version":"23.0.170"}}}`), 0o644)

	tests := []struct {
		name    string
		cfg     models.EngineConfig
		want    string
		wantErr bool
	}{
		{name: "explicit", cfg: models.EngineConfig{Version: "1.2.3", Lockfile: v1, Package: "quicktype"}, want: "1.2.3"},
		{name: "lockfile v1", cfg: models.EngineConfig{Lockfile: v1, Package: "quicktype"}, want: "12.0.1"},
		{name: "lockfile v3", cfg: models.EngineConfig{Lockfile: v3, Package: "quicktype"}, want: "23.0.170"},
		{name: "constraint ok", cfg: models.EngineConfig{Lockfile: v3, Package: "quicktype", VersionConstraint: ">= 23"}, want: "23.0.170"},
		{name: "constraint violated", cfg: models.EngineConfig{Lockfile: v1, Package: "quicktype", VersionConstraint: "^23"}, wantErr: true},
		{name: "missing package", cfg: models.EngineConfig{Lockfile: v1, Package: "other"}, wantErr: true},
		{name: "missing lockfile", cfg: models.EngineConfig{Lockfile: filepath.Join(dir, "nope"), Package: "quicktype"}, wantErr: true},
		{name: "nothing configured", cfg: models.EngineConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveVersion(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveVersion error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveVersion = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewUnsupportedEnvironment(t *testing.T) {
	_, err := New(context.Background(), models.EngineConfig{Command: "quicktype", Environment: models.EngineEnvironmentConfig{Type: "podman"}}, "1")
	if err == nil {
		t.Error("expected error for unsupported environment")
	}

	e, err := New(context.Background(), models.EngineConfig{Name: "quicktype", Command: "node_modules/.bin/quicktype --no-render"}, "1")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	pe, ok := e.(*ProcessEngine)
	if !ok {
		t.Fatalf("expected process engine, got %T", e)
	}
	if !reflect.DeepEqual(pe.argv, []string{"node_modules/.bin/quicktype", "--no-render"}) {
		t.Errorf("unexpected argv %v", pe.argv)
	}
}
