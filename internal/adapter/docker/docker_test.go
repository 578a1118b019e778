package docker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/domain"
)

func testSandboxConfig() config.Sandbox {
	return config.Sandbox{
		MemoryMB:    512,
		CPUQuota:    2000,
		PidsLimit:   100,
		NetworkMode: "none",
		Image:       "node:22-alpine",
	}
}

func TestCreateArgs(t *testing.T) {
	args := createArgs(testSandboxConfig(), "a1b2c3d4e5f6a7b8", "/srv/workspaces/a1b2")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--name pagecraft-ws-a1b2c3d4e5f6",
		"--memory=512m",
		"--cpus=2",
		"--pids-limit=100",
		"--network=none",
		"-v /srv/workspaces/a1b2:/workspace",
		"--cap-drop=ALL",
		"node:22-alpine",
		"sleep infinity",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestCreateArgsOmitsEmptyNetwork(t *testing.T) {
	cfg := testSandboxConfig()
	cfg.NetworkMode = ""
	joined := strings.Join(createArgs(cfg, "ws", "/p"), " ")
	if strings.Contains(joined, "--network") {
		t.Errorf("expected no --network flag: %s", joined)
	}
}

// fakeRunner records docker invocations and answers them from a script
// keyed by the first argument.
type fakeRunner struct {
	calls   [][]string
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeRunner) run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if err, ok := f.errs[args[0]]; ok {
		return "", err
	}
	return f.outputs[args[0]], nil
}

func (f *fakeRunner) count(verb string) int {
	n := 0
	for _, c := range f.calls {
		if c[0] == verb {
			n++
		}
	}
	return n
}

func TestExecuteUnknownWorkspace(t *testing.T) {
	p := New(testSandboxConfig())
	f := &fakeRunner{errs: map[string]error{"inspect": errors.New("no such object")}}
	p.run = f.run

	_, err := p.Execute(context.Background(), "missing", "echo hi", time.Second)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDestroyUnknownWorkspaceIsNoop(t *testing.T) {
	p := New(testSandboxConfig())
	f := &fakeRunner{errs: map[string]error{"inspect": errors.New("no such object")}}
	p.run = f.run

	if err := p.Destroy(context.Background(), "missing"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if f.count("rm") != 0 {
		t.Fatalf("rm calls = %d, want 0", f.count("rm"))
	}
}

func TestContainerResolvedByNameAfterRestart(t *testing.T) {
	// Fresh provider with an empty registry, as after a process restart.
	p := New(testSandboxConfig())
	f := &fakeRunner{outputs: map[string]string{"inspect": "deadbeef1234\n"}}
	p.run = f.run

	if err := p.Start(context.Background(), "a1b2c3d4e5f6a7b8"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	inspect := f.calls[0]
	if inspect[0] != "inspect" || inspect[len(inspect)-1] != "pagecraft-ws-a1b2c3d4e5f6" {
		t.Fatalf("first call = %v, want inspect by container name", inspect)
	}
	start := f.calls[1]
	if start[0] != "start" || start[1] != "deadbeef1234" {
		t.Fatalf("second call = %v, want start with resolved ID", start)
	}

	// Resolution is cached; another lookup must not inspect again.
	if err := p.Stop(context.Background(), "a1b2c3d4e5f6a7b8"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if f.count("inspect") != 1 {
		t.Fatalf("inspect calls = %d, want 1", f.count("inspect"))
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short = %q", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortID long = %q", got)
	}
}
