// Garnet CLI - inspects and runs programs held in the compiled program cache
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/chazu/garnet/cache"
	"github.com/chazu/garnet/driver"
	"github.com/chazu/garnet/manifest"
	"github.com/chazu/garnet/vm"
)

func main() {
	dir := flag.String("C", ".", "Directory to search for garnet.toml")
	cachePath := flag.String("cache", "", "Program cache path (overrides [cache] path)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: garnet [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  config        Print the effective configuration\n")
		fmt.Fprintf(os.Stderr, "  ls            List cached programs\n")
		fmt.Fprintf(os.Stderr, "  show <key>    Disassemble a cached program\n")
		fmt.Fprintf(os.Stderr, "  run <key>     Run a cached program and print its value\n")
		fmt.Fprintf(os.Stderr, "  rm <key>      Remove a cached program\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := loadManifest(*dir, *cachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	driver.ConfigureLogging(m)

	if err := run(context.Background(), os.Stdout, m, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadManifest(dir, cachePath string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		m.Dir = dir
	}
	if cachePath != "" {
		m.Cache.Path = cachePath
	}
	return m, nil
}

// run executes one command against the configuration m.
func run(ctx context.Context, out io.Writer, m *manifest.Manifest, args []string) error {
	cmd, rest := args[0], args[1:]

	if cmd == "config" {
		printConfig(out, m)
		return nil
	}

	path := m.CachePath()
	if path == "" {
		return errors.New("no program cache configured (set [cache] path or -cache)")
	}
	store, err := cache.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd {
	case "ls":
		return listPrograms(ctx, out, store)
	case "show", "run", "rm":
		if len(rest) != 1 {
			return fmt.Errorf("%s takes exactly one key", cmd)
		}
		return withEntry(ctx, out, store, cmd, rest[0])
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printConfig(out io.Writer, m *manifest.Manifest) {
	opts := m.CompilerOptions()
	fmt.Fprintf(out, "dir          %s\n", m.Dir)
	fmt.Fprintf(out, "project      %s\n", m.Project.Name)
	fmt.Fprintf(out, "verify       %t\n", opts.Verify)
	fmt.Fprintf(out, "debug-lines  %t\n", opts.DebugLines)
	fmt.Fprintf(out, "workers      %d\n", m.Driver.Workers)
	fmt.Fprintf(out, "cache        %s\n", orNone(m.CachePath()))
	fmt.Fprintf(out, "log          %s (verbosity %d)\n", orNone(m.LogFile()), m.Log.Verbosity)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func listPrograms(ctx context.Context, out io.Writer, store *cache.Store) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tUNIT\tSESSION\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key[:min(12, len(e.Key))], e.Unit, e.Session, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// withEntry resolves key, which may be a unique prefix, and applies cmd.
func withEntry(ctx context.Context, out io.Writer, store *cache.Store, cmd, key string) error {
	full, err := resolveKey(ctx, store, key)
	if err != nil {
		return err
	}

	if cmd == "rm" {
		return store.Delete(ctx, full)
	}

	e, err := store.Get(ctx, full)
	if err != nil {
		return err
	}
	switch cmd {
	case "show":
		fmt.Fprintln(out, e.Program.Disassemble())
	case "run":
		v, err := vm.NewInterpreter().Run(e.Program)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, vm.Inspect(v))
	}
	return nil
}

func resolveKey(ctx context.Context, store *cache.Store, prefix string) (string, error) {
	entries, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Key, prefix) {
			matches = append(matches, e.Key)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s: %w", prefix, cache.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("key prefix %s is ambiguous (%d matches)", prefix, len(matches))
}
