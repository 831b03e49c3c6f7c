// Package driver compiles batches of independent units in parallel,
// consulting the program cache when one is configured.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/garnet/cache"
	"github.com/chazu/garnet/compiler"
	"github.com/chazu/garnet/compiler/hash"
	"github.com/chazu/garnet/manifest"
	"github.com/chazu/garnet/vm"
)

var log = commonlog.GetLogger("garnet.driver")

// Result is the outcome of compiling one unit.
type Result struct {
	Unit    string
	Key     string // content hash of the unit and options
	Program *vm.Program
	Cached  bool // Program came from the cache
	Err     error
}

// Driver compiles units with one configuration. Every unit gets its own
// compiler and assembler, so a Driver may be used from many goroutines.
type Driver struct {
	opts    compiler.Options
	workers int
	store   *cache.Store
	session string
}

// ConfigureLogging applies the [log] section of m to the process-wide
// logging backend.
func ConfigureLogging(m *manifest.Manifest) {
	var path *string
	if f := m.LogFile(); f != "" {
		path = &f
	}
	commonlog.Configure(m.Log.Verbosity, path)
}

// New creates a driver for m, opening the program cache if one is
// configured. A nil manifest uses the defaults.
func New(m *manifest.Manifest) (*Driver, error) {
	if m == nil {
		m = manifest.Default()
	}
	d := &Driver{
		opts:    m.CompilerOptions(),
		workers: m.Driver.Workers,
		session: uuid.New().String(),
	}
	if d.workers < 1 {
		d.workers = manifest.DefaultWorkers
	}

	if p := m.CachePath(); p != "" {
		store, err := cache.Open(p)
		if err != nil {
			return nil, fmt.Errorf("driver: %w", err)
		}
		d.store = store
	}

	log.Infof("session %s: %d workers, verify=%t, debug-lines=%t, cache=%q",
		d.session, d.workers, d.opts.Verify, d.opts.DebugLines, m.CachePath())
	return d, nil
}

// Close releases the program cache.
func (d *Driver) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}

// Session returns the identifier recorded with every program this driver
// stores.
func (d *Driver) Session() string {
	return d.session
}

// Options returns the compiler options the driver uses.
func (d *Driver) Options() compiler.Options {
	return d.opts
}

// Store returns the program cache, or nil when caching is disabled.
func (d *Driver) Store() *cache.Store {
	return d.store
}

// Compile compiles a single unit.
func (d *Driver) Compile(ctx context.Context, u *compiler.Unit) Result {
	if u == nil {
		return Result{Err: errors.New("driver: nil unit")}
	}
	res := Result{Unit: u.Name, Key: hash.Key(hash.HashUnit(u, d.opts))}

	if d.store != nil {
		e, err := d.store.Get(ctx, res.Key)
		switch {
		case err == nil:
			log.Infof("%s: cache hit %s", u.Name, res.Key)
			res.Program = e.Program
			res.Cached = true
			return res
		case !errors.Is(err, cache.ErrNotFound):
			log.Warningf("%s: cache lookup failed: %s", u.Name, err)
		}
	}

	log.Debugf("%s: compiling %s (%d nodes)", u.Name, u.Kind, compiler.Count(u.Body))
	p, err := compiler.Compile(u, d.opts)
	if err != nil {
		log.Errorf("%s: %s", u.Name, err)
		res.Err = err
		return res
	}
	res.Program = p
	log.Debugf("%s: %d instructions, stack %d", u.Name, len(p.Code), p.StackSize)

	if d.store != nil {
		err := d.store.Put(ctx, cache.Entry{Key: res.Key, Unit: u.Name, Session: d.session, Program: p})
		if err != nil {
			log.Warningf("%s: cache store failed: %s", u.Name, err)
		}
	}
	return res
}

// CompileAll compiles units in parallel, at most workers at a time, and
// returns their results in input order. A unit that fails to compile does
// not stop the others; the returned error joins every unit failure, or is
// the context's error if ctx was cancelled first.
func (d *Driver) CompileAll(ctx context.Context, units []*compiler.Unit) ([]Result, error) {
	results := make([]Result, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, u := range units {
		i, u := i, u // per-iteration copies (go directive < 1.22)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.Compile(gctx, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	cached := 0
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
		if r.Cached {
			cached++
		}
	}
	log.Infof("session %s: compiled %d units (%d cached, %d failed)", d.session, len(units), cached, len(errs))
	return results, errors.Join(errs...)
}
