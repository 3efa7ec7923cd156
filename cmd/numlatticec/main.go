// Command numlatticec is the compiler CLI: a hand-rolled subcommand
// dispatcher over both the built-in demo programs and real source
// files.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/kr/pretty"
	"github.com/mattn/go-isatty"
	"golang.org/x/crypto/blake2b"

	"numlattice/internal/ast"
	"numlattice/internal/buildpipe"
	"numlattice/internal/cache"
	"numlattice/internal/devserver"
	"numlattice/internal/infer"
	"numlattice/internal/interp"
	"numlattice/internal/lex"
	"numlattice/internal/parse"
	"numlattice/internal/types"
)

type command func(args []string) error

var commands = map[string]command{
	"emit":  cmdEmit,
	"run":   cmdRun,
	"build": cmdBuild,
	"watch": cmdWatch,
	"help":  cmdHelp,
}

var aliases = map[string]string{
	"-h":      "help",
	"--help":  "help",
	"compile": "emit",
	"interp":  "run",
	"exec":    "run",
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the dispatcher body, factored out of main so CLI black-box
// tests can invoke it in-process via testscript.RunMain.
func run(args []string) int {
	if len(args) < 1 {
		cmdHelp(nil)
		return 1
	}
	name := args[0]
	if real, ok := aliases[name]; ok {
		name = real
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "numlatticec: unknown command %q\n", args[0])
		cmdHelp(nil)
		return 1
	}
	if err := cmd(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "numlatticec: %v\n", err)
		return 1
	}
	return 0
}

func demoByName(name string) (*ast.Module, error) {
	switch name {
	case "", "fibonacci":
		return fibonacciDemo(), nil
	case "saxpy":
		return saxpyDemo(), nil
	default:
		return nil, fmt.Errorf("unknown demo %q (want fibonacci or saxpy)", name)
	}
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// loadModule resolves --file, --demo, or (failing both) the fibonacci
// demo into a module plus the source text it was parsed from, if any;
// source is empty for AST-literal demos, which have no text to
// fingerprint against.
func loadModule(args []string) (mod *ast.Module, source string, err error) {
	if path := flagValue(args, "--file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", path, err)
		}
		tokens, err := lex.New(string(data)).Tokenize()
		if err != nil {
			return nil, "", err
		}
		mod, err := parse.Parse(tokens)
		if err != nil {
			return nil, "", err
		}
		return mod, string(data), nil
	}
	mod, err = demoByName(flagValue(args, "--demo"))
	return mod, "", err
}

// fingerprint hashes a module's textual representation so the artifact
// cache can key on it; demos with no source text fingerprint their
// pretty-printed AST instead, which is equally stable across runs.
func fingerprint(mod *ast.Module, source string) string {
	basis := source
	if basis == "" {
		basis = pretty.Sprint(mod)
	}
	sum := blake2b.Sum256([]byte(basis))
	return fmt.Sprintf("%x", sum)
}

// openCache opens a disk-backed sqlite cache in the OS temp directory.
// A failure to open is non-fatal: the CLI falls back to an uncached
// build (a nil store) rather than refusing to compile.
func openCache() *cache.Store {
	path := os.TempDir() + "/numlatticec-cache.db"
	store, err := cache.Open("sqlite", path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "numlatticec: cache unavailable, building uncached: %v\n", err)
		return nil
	}
	return store
}

// cmdEmit prints a program's lowered form: numlatticec emit --demo fibonacci --target c
// or numlatticec emit --file prog.nl --target gpu
func cmdEmit(args []string) error {
	target := flagValue(args, "--target")
	if target == "" {
		target = "c"
	}

	mod, source, err := loadModule(args)
	if err != nil {
		return err
	}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	switch target {
	case "ast":
		// kr/pretty renders the AST/symbol-table structure for inspection.
		fmt.Println(pretty.Sprint(mod))
		fmt.Println(pretty.Sprint(tab))
		return nil
	case "lex":
		if source == "" {
			return fmt.Errorf("--target lex requires --file (demos have no source text)")
		}
		tokens, err := lex.New(source).Tokenize()
		if err != nil {
			return err
		}
		fmt.Print(lex.Dump(tokens))
		return nil
	case "c", "gpu":
		store := openCache()
		if store != nil {
			defer store.Close()
		}
		m := &buildpipe.Manifest{Name: "demo", Targets: []buildpipe.Target{buildpipe.Target(target)}}
		res, err := buildpipe.Build(context.Background(), store, fingerprint(mod, source), m, mod, tab)
		if err != nil {
			return err
		}
		fmt.Print(res.Artifacts[0].Source)
		printBuildReport(res)
		return nil
	default:
		return fmt.Errorf("unknown --target %q", target)
	}
}

// cmdRun executes a demo or --file program directly with the tree-walk
// interpreter.
func cmdRun(args []string) error {
	mod, _, err := loadModule(args)
	if err != nil {
		return err
	}
	it := interp.New(func(line string) { fmt.Println(line) })
	return it.Run(mod)
}

// cmdBuild compiles a demo or --file program to every requested target
// and, for the C-like target, optionally compiles and runs the result
// with the system compiler (numlatticec build --demo fibonacci --target c --run).
// --manifest loads targets/engine-version/CC from a numlattice.json file
// instead of --target.
func cmdBuild(args []string) error {
	doRun := flagValue(args, "--run") == "true" || contains(args, "--run")

	mod, source, err := loadModule(args)
	if err != nil {
		return err
	}
	tab := types.NewTables()
	infer.Infer(mod, tab)

	m, err := resolveManifest(args)
	if err != nil {
		return err
	}

	store := openCache()
	if store != nil {
		defer store.Close()
	}
	res, err := buildpipe.Build(context.Background(), store, fingerprint(mod, source), m, mod, tab)
	if err != nil {
		return err
	}
	printBuildReport(res)

	if doRun && len(m.Targets) > 0 && m.Targets[0] == buildpipe.CLike {
		code, err := buildpipe.RunCLike(context.Background(), m, res.Artifacts[0], nil)
		if err != nil {
			return err
		}
		os.Exit(code)
	}
	return nil
}

// resolveManifest builds a Manifest from --manifest (a numlattice.json
// file) when given, falling back to a single-target manifest built from
// --target (defaulting to "c").
func resolveManifest(args []string) (*buildpipe.Manifest, error) {
	if path := flagValue(args, "--manifest"); path != "" {
		return buildpipe.LoadManifest(path)
	}
	target := flagValue(args, "--target")
	if target == "" {
		target = "c"
	}
	return &buildpipe.Manifest{Name: "demo", Targets: []buildpipe.Target{buildpipe.Target(target)}}, nil
}

// cmdWatch serves a websocket endpoint that recompiles --file on every
// request and broadcasts the result to every connected client.
func cmdWatch(args []string) error {
	path := flagValue(args, "--file")
	if path == "" {
		return fmt.Errorf("watch requires --file <path>")
	}
	target := flagValue(args, "--target")
	if target == "" {
		target = "c"
	}
	addr := flagValue(args, "--addr")
	if addr == "" {
		addr = ":8089"
	}

	srv := devserver.New()
	recompile := func() devserver.CompileResult {
		data, err := os.ReadFile(path)
		if err != nil {
			return devserver.CompileResult{OK: false, Error: err.Error()}
		}
		tokens, err := lex.New(string(data)).Tokenize()
		if err != nil {
			return devserver.CompileResult{OK: false, Error: err.Error()}
		}
		mod, err := parse.Parse(tokens)
		if err != nil {
			return devserver.CompileResult{OK: false, Error: err.Error()}
		}
		tab := types.NewTables()
		infer.Infer(mod, tab)
		m := &buildpipe.Manifest{Name: "watch", Targets: []buildpipe.Target{buildpipe.Target(target)}}
		res, err := buildpipe.Build(context.Background(), nil, fingerprint(mod, string(data)), m, mod, tab)
		if err != nil {
			return devserver.CompileResult{OK: false, Error: err.Error()}
		}
		return devserver.CompileResult{OK: true, Source: res.Artifacts[0].Source}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	mux.HandleFunc("/recompile", func(w http.ResponseWriter, r *http.Request) {
		result := recompile()
		if err := srv.Broadcast(r.Context(), result); err != nil {
			fmt.Fprintf(os.Stderr, "numlatticec: broadcast: %v\n", err)
		}
		if result.OK {
			fmt.Fprintf(w, "recompiled, %d client(s) notified\n", srv.ClientCount())
		} else {
			http.Error(w, result.Error, http.StatusBadRequest)
		}
	})

	fmt.Fprintf(os.Stderr, "numlatticec: watching %s, serving %s (ws: /ws, trigger: /recompile)\n", path, addr)
	return http.ListenAndServe(addr, mux)
}

func contains(args []string, needle string) bool {
	for _, a := range args {
		if a == needle {
			return true
		}
	}
	return false
}

// printBuildReport writes a humanized build summary, colored when stdout
// is a TTY (go-isatty), matching the compact report style of a build
// tool's terminal output.
func printBuildReport(res *buildpipe.BuildResult) {
	colored := isatty.IsTerminal(os.Stdout.Fd())
	for _, a := range res.Artifacts {
		if colored {
			fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s: %s (%s)\n", a.Target, a.Size, a.Fingerprint[:12])
		} else {
			fmt.Fprintf(os.Stderr, "%s: %s (%s)\n", a.Target, a.Size, a.Fingerprint[:12])
		}
	}
	fmt.Fprintf(os.Stderr, "build %s finished in %s\n", res.ID, res.Elapsed)
}

func cmdHelp(_ []string) error {
	fmt.Println(`numlatticec - numeric-lattice compiler

Usage:
  numlatticec emit  --demo <name> | --file <path> --target {ast,lex,c,gpu}
  numlatticec run   --demo <name> | --file <path>
  numlatticec build --demo <name> | --file <path> --target {c,gpu} [--run]
  numlatticec build --manifest numlattice.json [--run]
  numlatticec watch --file <path> --target {c,gpu} [--addr :8089]

Demos: fibonacci, saxpy`)
	return nil
}
