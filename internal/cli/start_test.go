package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/args"
	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/nuxt"
	"github.com/yamatt/go-nuxt/internal/testutil"
)

// fakeFramework records the calls made by Start.
type fakeFramework struct {
	opts *config.Options

	mu         sync.Mutex
	hooks      map[string][]nuxt.HookFunc
	listens    int
	readyCalls []bool
	closes     int
	listenErr  error
	listening  chan struct{}
}

func newFake(opts *config.Options) *fakeFramework {
	return &fakeFramework{opts: opts, hooks: map[string][]nuxt.HookFunc{}, listening: make(chan struct{})}
}

func (f *fakeFramework) Options() *config.Options { return f.opts }

func (f *fakeFramework) Hook(name string, fn nuxt.HookFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[name] = append(f.hooks[name], fn)
}

func (f *fakeFramework) Listen(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listens++
	return f.listenErr
}

func (f *fakeFramework) ShowReady(openBrowser bool) {
	f.mu.Lock()
	f.readyCalls = append(f.readyCalls, openBrowser)
	f.mu.Unlock()
	close(f.listening)
}

func (f *fakeFramework) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeFramework) fire(name string, args ...any) {
	f.mu.Lock()
	fns := append([]nuxt.HookFunc(nil), f.hooks[name]...)
	f.mu.Unlock()
	for _, fn := range fns {
		_ = fn(context.Background(), args...)
	}
}

// harness wires Start to a fake framework and captures what was built.
type harness struct {
	stderr  *bytes.Buffer
	created []*fakeFramework
	mu      sync.Mutex
	prepare func(*fakeFramework)
}

func (h *harness) deps() Deps {
	h.stderr = &bytes.Buffer{}
	return Deps{
		Stderr: h.stderr,
		Logger: zap.NewNop(),
		Env:    config.Env{},
		NewFramework: func(o *config.Options, _ *zap.Logger) Framework {
			f := newFake(o)
			if h.prepare != nil {
				h.prepare(f)
			}
			h.mu.Lock()
			h.created = append(h.created, f)
			h.mu.Unlock()
			return f
		},
		ShutdownTimeout: time.Second,
	}
}

func (h *harness) framework(t *testing.T) *fakeFramework {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.created, 1, "expected exactly one framework instance")
	return h.created[0]
}

func TestStart_Help(t *testing.T) {
	h := &harness{}
	// A config file that would fail to load proves help returns first.
	err := Start(context.Background(), h.deps(), []string{"--help", "-c", "does-not-exist.toml"})

	require.NoError(t, err)
	assert.Contains(t, h.stderr.String(), "Starts the application in production mode.")
	assert.Contains(t, h.stderr.String(), "$ nuxt start <dir>")
	assert.Empty(t, h.created, "help must not create a framework")
}

func TestStart_EmptyHostname(t *testing.T) {
	h := &harness{}
	err := Start(context.Background(), h.deps(), []string{"--hostname", "", "-c", "does-not-exist.toml"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.Code)
	assert.Contains(t, exitErr.Message, "hostname")
	assert.Empty(t, h.created)
}

func TestStart_EmptyHostnameBeatsHelp(t *testing.T) {
	h := &harness{}
	err := Start(context.Background(), h.deps(), []string{"-h", "-H", ""})

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, h.stderr.String())
}

func TestStart_UnknownFlag(t *testing.T) {
	h := &harness{}
	err := Start(context.Background(), h.deps(), []string{"--dev"})

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, h.created)
}

func TestStart_ConfigError(t *testing.T) {
	h := &harness{}
	err := Start(context.Background(), h.deps(), []string{t.TempDir(), "-c", "missing.toml"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not load config file")
	assert.Empty(t, h.created)
}

func TestStart_MissingBuildDir(t *testing.T) {
	h := &harness{}
	root := t.TempDir()

	err := Start(context.Background(), h.deps(), []string{root})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "please run `nuxt build` before launching `nuxt start`")
	assert.Zero(t, h.framework(t).listens, "listen must not be called")
}

func TestStart_MissingSSRBundle(t *testing.T) {
	h := &harness{}
	root := t.TempDir()
	testutil.WriteBuild(t, root, testutil.Build{ServerDir: true})

	err := Start(context.Background(), h.deps(), []string{root})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "nuxt start --spa")
	assert.Contains(t, err.Error(), "nuxt build --universal")
	assert.Zero(t, h.framework(t).listens)
}

func TestStart_SPAModeSkipsBundleCheck(t *testing.T) {
	h := &harness{}
	root := t.TempDir()
	testutil.WriteBuild(t, root, testutil.Build{ServerDir: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, h.deps(), []string{root, "--spa"}) }()

	waitListening(t, h)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.framework(t).listens)
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	h := &harness{}
	root := t.TempDir()
	testutil.WriteBuild(t, root, testutil.Build{BuildDir: ".output", ServerDir: true, SSRBundle: true})
	require.NoError(t, os.WriteFile(filepath.Join(root, args.DefaultConfigFile), []byte("dev = true\nbuild_dir = \".output\"\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, h.deps(), []string{root}) }()

	fw := waitListening(t, h)
	cancel()
	require.NoError(t, <-done)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	assert.False(t, fw.opts.Dev, "dev must be forced to false")
	assert.Equal(t, 1, fw.listens, "listen must be called exactly once")
	assert.Equal(t, []bool{false}, fw.readyCalls, "ready must be shown without opening a browser")
	assert.Equal(t, 1, fw.closes)
	assert.Len(t, fw.hooks[nuxt.HookError], 1, "an error hook must be registered")
}

func TestStart_ErrorHookIsFatal(t *testing.T) {
	h := &harness{}
	root := t.TempDir()
	testutil.WriteBuild(t, root, testutil.Build{ServerDir: true, SSRBundle: true})

	done := make(chan error, 1)
	go func() { done <- Start(context.Background(), h.deps(), []string{root}) }()

	fw := waitListening(t, h)
	fw.fire(nuxt.HookError, errors.New("address in use"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFramework)
		assert.Contains(t, err.Error(), "address in use")
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after the error hook fired")
	}
	fw.mu.Lock()
	assert.Equal(t, 1, fw.closes)
	fw.mu.Unlock()
}

func TestStart_ListenFailure(t *testing.T) {
	h := &harness{prepare: func(f *fakeFramework) { f.listenErr = errors.New("bind failed") }}
	root := t.TempDir()
	testutil.WriteBuild(t, root, testutil.Build{ServerDir: true, SSRBundle: true})

	err := Start(context.Background(), h.deps(), []string{root})

	assert.ErrorIs(t, err, ErrFramework)
	assert.Contains(t, err.Error(), "bind failed")
	assert.Empty(t, h.framework(t).readyCalls)
}

func TestStart_RealServer(t *testing.T) {
	root := t.TempDir()
	testutil.WriteBuild(t, root, testutil.Build{ServerDir: true, SSRBundle: true})

	var stdout bytes.Buffer
	listening := make(chan *nuxt.Nuxt, 1)
	deps := Deps{
		Stderr: io.Discard,
		Env:    config.Env{},
		NewFramework: func(o *config.Options, l *zap.Logger) Framework {
			n := nuxt.New(o, l, nuxt.WithOutput(&stdout))
			n.Hook(nuxt.HookListen, func(context.Context, ...any) error {
				listening <- n
				return nil
			})
			return n
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, deps, []string{root, "-H", "127.0.0.1", "-p", "0"}) }()

	select {
	case n := <-listening:
		assert.NotNil(t, n.Addr())
	case err := <-done:
		t.Fatalf("Start returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start listening")
	}
	cancel()
	require.NoError(t, <-done)
}

func waitListening(t *testing.T, h *harness) *fakeFramework {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		h.mu.Lock()
		var fw *fakeFramework
		if len(h.created) > 0 {
			fw = h.created[0]
		}
		h.mu.Unlock()
		if fw != nil {
			select {
			case <-fw.listening:
				return fw
			case <-deadline:
				t.Fatal("framework never became ready")
			}
		}
		select {
		case <-deadline:
			t.Fatal("framework was never created")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStart_HostnameFollowedByFlag(t *testing.T) {
	for _, raw := range [][]string{
		{"-H", "-p", "3000"},
		{"--hostname", "--port", "3000"},
	} {
		h := &harness{}
		err := Start(context.Background(), h.deps(), raw)

		assert.ErrorIs(t, err, ErrInvalidArgument, "args %v", raw)
		assert.Empty(t, h.created, "args %v", raw)
	}
}
