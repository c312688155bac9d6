package reconcile

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/typeguard/typedsets/internal/forge"
	"github.com/typeguard/typedsets/internal/git"
	"github.com/typeguard/typedsets/internal/models"
)

var (
	testHost  = models.HostConfig{Org: "typeguard", RepoPrefix: "types-", Branch: "master"}
	testRetry = models.RetryConfig{MaxAttempts: 2, InitialDelayMs: 1, MaxDelayMs: 1, Multiplier: 1}
)

type fakeCopy struct {
	log     *[]string
	changed bool
	pushErr []error
}

func (f *fakeCopy) CommitEmpty(msg string) (string, error) {
	*f.log = append(*f.log, "commit-empty "+msg)
	return "root", nil
}

func (f *fakeCopy) HasChanges() (bool, error) { return f.changed, nil }

func (f *fakeCopy) CommitAll(msg string) (string, error) {
	*f.log = append(*f.log, "commit "+msg)
	return "abc123", nil
}

func (f *fakeCopy) Push(ctx context.Context) error {
	*f.log = append(*f.log, "push")
	if len(f.pushErr) > 0 {
		err := f.pushErr[0]
		f.pushErr = f.pushErr[1:]
		return err
	}
	return nil
}

type fakeVCS struct {
	log     []string
	present bool
	copy    *fakeCopy
}

func (f *fakeVCS) Clone(ctx context.Context, remote, dir string) (WorkingCopy, error) {
	f.log = append(f.log, "clone "+remote)
	if !f.present {
		return nil, errors.New("repository not found")
	}
	return f.copy, nil
}

func (f *fakeVCS) Init(dir, remote string) (WorkingCopy, error) {
	f.log = append(f.log, "init "+remote)
	return f.copy, nil
}

type fakeCreator struct {
	log     *[]string
	created []forge.Repository
	err     error
}

func (f *fakeCreator) RemoteURL(fullName string) string { return "remote:" + fullName }

func (f *fakeCreator) Create(ctx context.Context, repo forge.Repository) error {
	*f.log = append(*f.log, "create "+repo.FullName)
	f.created = append(f.created, repo)
	return f.err
}

func newFakes(present, changed bool) (*fakeVCS, *fakeCreator) {
	vcs := &fakeVCS{present: present}
	vcs.copy = &fakeCopy{log: &vcs.log, changed: changed}
	return vcs, &fakeCreator{log: &vcs.log}
}

func testMeta(t *testing.T) models.DatasetMeta {
	return models.DatasetMeta{
		Slug:    "bitcoin",
		RepoDir: filepath.Join(t.TempDir(), "types-bitcoin"),
		Dataset: models.Descriptor{Name: "Bitcoin", URL: "https://blockchain.info"},
	}
}

func noopPopulate(ctx context.Context, dir string) error { return nil }

func equalLog(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("operation log mismatch\n got: %q\nwant: %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("operation %d: got %q, want %q (full log %q)", i, got[i], want[i], got)
		}
	}
}

func TestReconcileAbsent(t *testing.T) {
	vcs, creator := newFakes(false, true)
	r := New(vcs, creator, testHost, testRetry, "quicktype", "15.0.209")

	out, err := r.Reconcile(context.Background(), testMeta(t), noopPopulate)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	equalLog(t, vcs.log, []string{
		"clone remote:typeguard/types-bitcoin",
		"init remote:typeguard/types-bitcoin",
		"commit-empty create",
		"create typeguard/types-bitcoin",
		"push",
		"commit update (quicktype 15.0.209)",
		"push",
	})
	if out.InitialState != models.RepoAbsent || !out.Created || !out.Committed || out.Commit != "abc123" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if creator.created[0].Description != "Bitcoin" || creator.created[0].Homepage != "https://blockchain.info" {
		t.Errorf("unexpected repository metadata %+v", creator.created[0])
	}
}

func TestReconcilePresentUnchanged(t *testing.T) {
	vcs, creator := newFakes(true, false)
	r := New(vcs, creator, testHost, testRetry, "quicktype", "15.0.209")

	populated := false
	out, err := r.Reconcile(context.Background(), testMeta(t), func(ctx context.Context, dir string) error {
		populated = true
		return nil
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !populated {
		t.Error("expected populate to run")
	}

	equalLog(t, vcs.log, []string{"clone remote:typeguard/types-bitcoin"})
	if out.InitialState != models.RepoPresent || out.Created || out.Committed {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestReconcilePushRetried(t *testing.T) {
	vcs, creator := newFakes(true, true)
	vcs.copy.pushErr = []error{errors.New("connection reset")}
	r := New(vcs, creator, testHost, testRetry, "quicktype", "1")

	out, err := r.Reconcile(context.Background(), testMeta(t), noopPopulate)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !out.Committed {
		t.Error("expected commit")
	}
	equalLog(t, vcs.log, []string{"clone remote:typeguard/types-bitcoin", "commit update (quicktype 1)", "push", "push"})
}

func TestReconcileErrors(t *testing.T) {
	t.Run("create fails", func(t *testing.T) {
		vcs, creator := newFakes(false, true)
		creator.err = errors.New("forbidden")
		r := New(vcs, creator, testHost, testRetry, "quicktype", "1")

		_, err := r.Reconcile(context.Background(), testMeta(t), noopPopulate)
		if models.ErrorTypeOf(err) != models.ErrRepository {
			t.Errorf("expected repository error, got %v", err)
		}
	})

	t.Run("push exhausted", func(t *testing.T) {
		vcs, creator := newFakes(true, true)
		vcs.copy.pushErr = []error{errors.New("down"), errors.New("down")}
		r := New(vcs, creator, testHost, testRetry, "quicktype", "1")

		out, err := r.Reconcile(context.Background(), testMeta(t), noopPopulate)
		if models.ErrorTypeOf(err) != models.ErrRepository {
			t.Errorf("expected repository error, got %v", err)
		}
		if out.Committed {
			t.Error("commit should not be reported as pushed")
		}
	})

	t.Run("populate error passes through", func(t *testing.T) {
		vcs, creator := newFakes(true, true)
		r := New(vcs, creator, testHost, testRetry, "quicktype", "1")
		genErr := models.NewError(models.ErrGeneration, "bitcoin", errors.New("engine crashed"))

		_, err := r.Reconcile(context.Background(), testMeta(t), func(context.Context, string) error { return genErr })
		if models.ErrorTypeOf(err) != models.ErrGeneration {
			t.Errorf("expected generation error, got %v", err)
		}
		for _, op := range vcs.log {
			if op == "push" {
				t.Error("nothing should be pushed after a populate failure")
			}
		}
	})
}

func TestReconcileWithGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()

	host := testHost
	creator := forge.NewLocal(t.TempDir())
	vcs := GitVCS{Options: git.Options{Branch: "master", AuthorName: "typedsets", AuthorEmail: "typedsets@example.com"}}
	meta := testMeta(t)

	content := "v1"
	populate := func(ctx context.Context, dir string) error {
		return os.WriteFile(filepath.Join(dir, "README.md"), []byte(content), 0o644)
	}

	r := New(vcs, creator, host, testRetry, "quicktype", "1.0.0")

	first, err := r.Reconcile(ctx, meta, populate)
	if err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}
	if first.InitialState != models.RepoAbsent || !first.Created || !first.Committed {
		t.Errorf("unexpected first outcome %+v", first)
	}

	second, err := r.Reconcile(ctx, meta, populate)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if second.InitialState != models.RepoPresent || second.Created || second.Committed {
		t.Errorf("expected idempotent second pass, got %+v", second)
	}

	content = "v2"
	third, err := r.Reconcile(ctx, meta, populate)
	if err != nil {
		t.Fatalf("third Reconcile failed: %v", err)
	}
	if !third.Committed {
		t.Errorf("expected a commit after content changed, got %+v", third)
	}
}
