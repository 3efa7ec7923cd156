// Package buildpipe drives a multi-target build: given an already-parsed
// module and a project manifest, it emits source for one or more
// backends concurrently, fingerprints each emitted artifact, and
// optionally shells out to a system C compiler to produce a runnable
// binary.
package buildpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"numlattice/internal/ast"
	"numlattice/internal/backend/clike"
	"numlattice/internal/backend/gpu"
	"numlattice/internal/cache"
	"numlattice/internal/types"
)

// Target names a backend this pipeline knows how to emit.
type Target string

const (
	CLike Target = "c"
	GPU   Target = "gpu"
)

// Manifest describes one project's build configuration, loaded from a
// numlattice.json file. EngineVersion is a minimum semver version (a
// plain version such as "v1.2.0", not a range expression) that
// EngineVersionCurrent must be at or above, so a manifest can refuse to
// build against a compiler too old to support the constructs it emits.
type Manifest struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	EngineVersion string   `json:"engine_version"`
	Targets       []Target `json:"targets"`
	OutputDir     string   `json:"output_dir"`
	CC            string   `json:"cc"` // system compiler invoked for CLike "run" builds; default "cc"
}

// EngineVersionCurrent is this compiler's own semver-compatible version,
// compared against a manifest's EngineVersion constraint.
const EngineVersionCurrent = "v0.1.0"

// LoadManifest reads and unmarshals a numlattice.json project manifest
// from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("buildpipe: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("buildpipe: parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Artifact is one backend's emitted output plus its fingerprint.
type Artifact struct {
	Target      Target
	Source      string
	Fingerprint string
	Size        string // human-readable, via go-humanize
	Cached      bool   // source came from the artifact cache, not a fresh emission
}

// BuildResult collects every target's artifact plus the overall build ID.
type BuildResult struct {
	ID        string
	Artifacts []Artifact
	Elapsed   time.Duration
}

// CheckEngineVersion verifies m.EngineVersion (e.g. "v0.1.0") is satisfied
// by EngineVersionCurrent. An empty constraint always passes.
func CheckEngineVersion(m *Manifest) error {
	if m.EngineVersion == "" {
		return nil
	}
	if !semver.IsValid(m.EngineVersion) {
		return fmt.Errorf("buildpipe: invalid engine_version constraint %q", m.EngineVersion)
	}
	if semver.Compare(EngineVersionCurrent, m.EngineVersion) < 0 {
		return fmt.Errorf("buildpipe: engine %s does not satisfy required %s", EngineVersionCurrent, m.EngineVersion)
	}
	return nil
}

// Build emits every target in m.Targets concurrently and fingerprints
// each artifact. Emission itself has no I/O and cannot meaningfully race,
// but concurrent backends let a multi-target manifest (e.g. "c" and
// "gpu" together) overlap wall-clock work once a target's emission grows
// to include real compiler invocation.
//
// A nil store skips caching entirely. When store is non-nil, each
// target's emission is skipped in favor of a Lookup hit keyed by
// (source fingerprint, target); a miss falls through to emission and is
// recorded with Store before the result is returned, so re-building an
// unchanged module never re-runs a backend.
func Build(ctx context.Context, store *cache.Store, sourceFingerprint string, m *Manifest, mod *ast.Module, tab *types.Tables) (*BuildResult, error) {
	if err := CheckEngineVersion(m); err != nil {
		return nil, err
	}

	start := time.Now()
	artifacts := make([]Artifact, len(m.Targets))

	g, _ := errgroup.WithContext(ctx)
	for i, target := range m.Targets {
		i, target := i, target
		g.Go(func() error {
			src, cached, err := lookupOrEmit(store, sourceFingerprint, target, mod, tab)
			if err != nil {
				return fmt.Errorf("buildpipe: emit %s: %w", target, err)
			}
			sum := blake2b.Sum256([]byte(src))
			artifacts[i] = Artifact{
				Target:      target,
				Source:      src,
				Fingerprint: fmt.Sprintf("%x", sum),
				Size:        humanize.Bytes(uint64(len(src))),
				Cached:      cached,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BuildResult{
		ID:        uuid.NewString(),
		Artifacts: artifacts,
		Elapsed:   time.Since(start),
	}, nil
}

// lookupOrEmit returns a target's source, preferring a cache hit over
// running the backend. cached reports whether the source came from the
// cache, for callers that want to report it.
func lookupOrEmit(store *cache.Store, fingerprint string, target Target, mod *ast.Module, tab *types.Tables) (src string, cached bool, err error) {
	if store != nil {
		if hit, ok, lookupErr := store.Lookup(fingerprint, string(target)); lookupErr == nil && ok {
			return hit, true, nil
		}
	}
	src, err = emit(target, mod, tab)
	if err != nil {
		return "", false, err
	}
	if store != nil {
		if _, storeErr := store.Store(fingerprint, string(target), src); storeErr != nil {
			return "", false, fmt.Errorf("caching artifact: %w", storeErr)
		}
	}
	return src, false, nil
}

func emit(target Target, mod *ast.Module, tab *types.Tables) (string, error) {
	switch target {
	case CLike:
		return clike.Generate(mod, tab)
	case GPU:
		return gpu.Generate(mod, tab)
	default:
		return "", fmt.Errorf("unknown target %q", target)
	}
}

// RunCLike writes the C-like artifact to a temp directory, compiles it
// with the configured system compiler (cc by default, linked against
// libm), and runs the resulting binary, streaming its exit code back to
// the caller.
func RunCLike(ctx context.Context, m *Manifest, artifact Artifact, args []string) (int, error) {
	dir, err := os.MkdirTemp("", "numlattice-build-*")
	if err != nil {
		return -1, err
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "program.c")
	if err := os.WriteFile(srcPath, []byte(artifact.Source), 0644); err != nil {
		return -1, err
	}

	binPath := filepath.Join(dir, "program")
	cc := m.CC
	if cc == "" {
		cc = "cc"
	}
	compile := exec.CommandContext(ctx, cc, srcPath, "-lm", "-o", binPath)
	compile.Stdout = os.Stdout
	compile.Stderr = os.Stderr
	if err := compile.Run(); err != nil {
		return -1, fmt.Errorf("buildpipe: compile failed: %w", err)
	}

	run := exec.CommandContext(ctx, binPath, args...)
	run.Stdout = os.Stdout
	run.Stderr = os.Stderr
	run.Stdin = os.Stdin
	if err := run.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}
