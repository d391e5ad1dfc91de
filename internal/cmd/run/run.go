// Package run implements the command that loads guest modules and calls
// one of their exports.
package run

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wasm-everything/we/host"
	"github.com/wasm-everything/we/internal/abi"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:    "codec",
		Usage:   "`name` of the codec shared with guests (json, gob)",
		Value:   "json",
		EnvVars: []string{"WE_CODEC"},
	},
	&cli.StringFlag{
		Name:    "import-module",
		Usage:   "module `name` guests import host functions from",
		Value:   abi.ImportModule,
		EnvVars: []string{"WE_IMPORT_MODULE"},
	},
	&cli.UintFlag{
		Name:    "max-request-size",
		Usage:   "maximum invoke argument size in `bytes`",
		Value:   host.DefaultMaxRequestSize,
		EnvVars: []string{"WE_MAX_REQUEST_SIZE"},
	},
	&cli.BoolFlag{
		Name:    "verify-handshake",
		Usage:   "read the instance id back after assigning it",
		Value:   true,
		EnvVars: []string{"WE_VERIFY_HANDSHAKE"},
	},
	&cli.BoolFlag{
		Name:  "inline",
		Usage: "serve host calls inside the guest's import call",
	},
	&cli.StringFlag{
		Name:    "export",
		Aliases: []string{"e"},
		Usage:   "`name` of the export to call on every module",
		Value:   "hello",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "wait at most `duration` for each module's reply",
		Value: 10 * time.Second,
	},
}

// Command returns the run command.
func Command() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "load wasm modules and call an export on each",
		ArgsUsage: "<module.wasm> [module.wasm...]",
		Flags:     flags,
		Action:    action,
	}
}

func action(c *cli.Context) (err error) {
	if c.NArg() == 0 {
		return cli.Exit("no modules given", 2)
	}

	log, err := logger(c)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	host.SetLogger(log)

	svc, err := services(
		host.WithInline(c.Bool("inline")),
		host.WithMiddleware(host.PanicRecoveryMiddleware(), host.LoggingMiddleware(log)),
		host.WithServiceLogger(log),
	)
	if err != nil {
		return err
	}

	h, err := host.New(c.Context,
		host.WithCodec(c.String("codec")),
		host.WithImportModule(c.String("import-module")),
		host.WithMaxRequestSize(uint32(c.Uint("max-request-size"))), //nolint:gosec // G115: flag value
		host.WithHandshakeCheck(c.Bool("verify-handshake")),
		host.WithLogger(log),
		host.WithDispatcher(svc))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, h.Close(context.Background()))
	}()

	instances, err := load(c.Context, h, c.Args().Slice())
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(c.Context)
	for i, inst := range instances {
		path := c.Args().Get(i)
		g.Go(func() error {
			out, err := call(ctx, inst, c.String("export"), c.Duration("timeout"))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintf(c.App.Writer, "%s: %s\n", path, out)
			return err
		})
	}
	return g.Wait()
}

// load instantiates every module concurrently.
func load(ctx context.Context, h *host.Host, paths []string) ([]*host.Instance, error) {
	instances := make([]*host.Instance, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			wasm, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			inst, err := h.Load(ctx, wasm)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			instances[i] = inst

			name, _ := inst.Name()
			host.Logger().Debug("module ready",
				zap.String("path", path),
				zap.String("name", name),
				zap.Uint64("instance", inst.ID()))
			return nil
		})
	}
	return instances, g.Wait()
}

// call runs export and waits for the bytes the guest hands back.
func call(ctx context.Context, inst *host.Instance, export string, timeout time.Duration) (string, error) {
	cell, err := inst.CallAsync(ctx, export)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf, err := cell.Await(ctx)
	if err != nil {
		return "", err
	}
	defer buf.Release()
	return string(buf.Bytes()), nil
}
