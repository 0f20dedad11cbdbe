package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/device"
	"github.com/jnwhiteh/sectorfs/fs"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	app := cli.App{
		Name:        appName,
		Usage:       "work with sectorfs disk images",
		Description: "format, inspect and edit filesystem images made of fixed-size sectors",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "the image file"},
			&cli.IntFlag{Name: "sector-size", Usage: "bytes per sector"},
			&cli.IntFlag{Name: "sectors", Usage: "sectors in a new image"},
			&cli.IntFlag{Name: "cache", Usage: "sectors to cache, 0 disables the cache"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{{
			Name:        "mkfs",
			Aliases:     []string{"format"},
			Description: "create an empty filesystem image",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "import",
					Usage: "a host directory to copy into the new filesystem",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "overwrite an existing image",
				},
			},
			Action: mkfs,
		}, {
			Name:        "ls",
			Aliases:     []string{"list"},
			ArgsUsage:   "[PATH]",
			Description: "list a directory",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				dir := ctx.Args().First()
				if dir == "" {
					dir = "/"
				}
				return list(fsys, ctx.App.Writer, dir)
			}),
		}, {
			Name:        "cat",
			ArgsUsage:   "PATH",
			Description: "print a file",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				p, err := arg(ctx, 0)
				if err != nil {
					return err
				}
				return cat(fsys, ctx.App.Writer, p)
			}),
		}, {
			Name:        "put",
			ArgsUsage:   "HOSTFILE PATH",
			Description: "copy a host file into the image",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				args, err := needArgs(ctx, 2)
				if err != nil {
					return err
				}
				return put(fsys, args[0], args[1])
			}),
		}, {
			Name:        "get",
			ArgsUsage:   "PATH HOSTFILE",
			Description: "copy a file out of the image",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				args, err := needArgs(ctx, 2)
				if err != nil {
					return err
				}
				return get(fsys, args[0], args[1])
			}),
		}, {
			Name:        "mkdir",
			ArgsUsage:   "PATH...",
			Description: "create directories",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				return each(ctx, fsys.Mkdir)
			}),
		}, {
			Name:        "rm",
			Aliases:     []string{"remove"},
			ArgsUsage:   "PATH...",
			Description: "remove files and symlinks",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				return each(ctx, fsys.Remove)
			}),
		}, {
			Name:        "rmdir",
			ArgsUsage:   "PATH...",
			Description: "remove empty directories",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				return each(ctx, fsys.Rmdir)
			}),
		}, {
			Name:        "ln",
			ArgsUsage:   "OLD NEW",
			Description: "make a hard link, or a symlink with -s",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "s", Usage: "make a symlink holding OLD"},
			},
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				args, err := needArgs(ctx, 2)
				if err != nil {
					return err
				}
				return link(fsys, ctx.Bool("s"), args[0], args[1])
			}),
		}, {
			Name:        "stat",
			ArgsUsage:   "PATH",
			Description: "describe an entry without following symlinks",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "binary", Usage: "write the raw stat record"},
			},
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				p, err := arg(ctx, 0)
				if err != nil {
					return err
				}
				if !ctx.Bool("binary") {
					return stat(fsys, ctx.App.Writer, p)
				}
				st, err := fsys.Stat(p)
				if err != nil {
					return err
				}
				data, err := st.MarshalBinary()
				if err != nil {
					return err
				}
				_, err = ctx.App.Writer.Write(data)
				return err
			}),
		}, {
			Name:        "df",
			Description: "show space usage",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				return df(fsys, ctx.App.Writer)
			}),
		}, {
			Name:        "fsck",
			Aliases:     []string{"check"},
			Description: "check the image for lost, shared or miscounted sectors",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				problems, err := fsys.Check()
				if err != nil {
					return err
				}
				for _, p := range problems {
					fmt.Fprintln(ctx.App.Writer, p)
				}
				if len(problems) > 0 {
					return errors.Newf(errors.CodeInternal, "%d problems found", len(problems))
				}
				return nil
			}),
		}, {
			Name:        "inspect",
			ArgsUsage:   "[PATH]",
			Description: "dump an inode and its directory table",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "bitmap", Usage: "dump the allocation table too"},
			},
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				p := ctx.Args().First()
				if p == "" {
					p = "/"
				}
				if err := fsys.Dump(p, ctx.App.Writer); err != nil {
					return err
				}
				if ctx.Bool("bitmap") {
					return fsys.DumpBitmap(ctx.App.Writer)
				}
				return nil
			}),
		}, {
			Name:        "shell",
			Aliases:     []string{"explore"},
			Description: "explore the image interactively",
			Action: withFS(func(fsys *fs.FileSystem, ctx *cli.Context) error {
				interactive := term.IsTerminal(int(os.Stdin.Fd()))
				return repl(fsys, os.Stdin, ctx.App.Writer, interactive)
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// setup resolves the configuration for one command and installs the
// logger it asks for.
func setup(ctx *cli.Context) (*Config, *zap.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if ctx.IsSet("image") {
		cfg.Image = ctx.String("image")
	}
	if ctx.IsSet("sector-size") {
		cfg.SectorSize = ctx.Int("sector-size")
	}
	if ctx.IsSet("sectors") {
		cfg.SectorCount = ctx.Int("sectors")
	}
	if ctx.IsSet("cache") {
		cfg.CacheSectors = ctx.Int("cache")
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	common.SetLogger(logger)
	return cfg, logger, nil
}

func (c *Config) options(logger *zap.Logger) []fs.Option {
	opts := []fs.Option{fs.WithCache(c.CacheSectors), fs.WithLogger(logger)}
	if c.SwapFile != "" {
		opts = append(opts, fs.WithSwapFile(c.SwapFile))
	}
	return opts
}

// hostPath splits a host path into a billy filesystem rooted at its
// directory and the base name inside it.
func hostPath(p string) (billy.Filesystem, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", errors.Wrapf(err, errors.CodeInvalidInput, "resolving %s", p)
	}
	return osfs.New(filepath.Dir(abs)), filepath.Base(abs), nil
}

func withFS(action func(*fs.FileSystem, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, logger, err := setup(ctx)
		if err != nil {
			return err
		}
		defer logger.Sync()

		bfs, name, err := hostPath(cfg.Image)
		if err != nil {
			return err
		}
		dev, err := device.NewFileDevice(bfs, name, cfg.SectorSize, 0)
		if err != nil {
			return errors.Wrapf(err, errors.GetCode(err), "opening image %s", cfg.Image)
		}
		fsys, err := fs.Mount(dev, cfg.options(logger)...)
		if err != nil {
			dev.Close()
			return errors.Wrapf(err, errors.GetCode(err), "mounting %s", cfg.Image)
		}

		err = action(fsys, ctx)
		if serr := fsys.Shutdown(); err == nil {
			err = serr
		}
		return err
	}
}

func mkfs(ctx *cli.Context) error {
	cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()

	bfs, name, err := hostPath(cfg.Image)
	if err != nil {
		return err
	}
	if _, err := bfs.Stat(name); err == nil {
		if !ctx.Bool("force") {
			return errors.Wrapf(common.EEXIST, errors.CodeAlreadyExists,
				"image %s exists, use --force to overwrite it", cfg.Image)
		}
		if err := bfs.Remove(name); err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "removing %s", cfg.Image)
		}
	}

	dev, err := device.NewFileDevice(bfs, name, cfg.SectorSize, cfg.SectorCount)
	if err != nil {
		return err
	}
	fsys, err := fs.Format(dev, cfg.options(logger)...)
	if err != nil {
		dev.Close()
		return err
	}
	if dir := ctx.String("import"); dir != "" {
		err = fsys.Import(osfs.New(dir), "/", "/")
	}
	if serr := fsys.Shutdown(); err == nil {
		err = serr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "formatted %s: %d sectors of %d bytes\n",
		cfg.Image, cfg.SectorCount, cfg.SectorSize)
	return nil
}

func put(fsys *fs.FileSystem, hostfile, p string) error {
	bfs, name, err := hostPath(hostfile)
	if err != nil {
		return err
	}
	in, err := bfs.Open(name)
	if err != nil {
		return errors.Wrapf(err, errors.CodeNotFound, "opening %s", hostfile)
	}
	defer in.Close()

	out, err := fsys.Open(p, true)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func get(fsys *fs.FileSystem, p, hostfile string) error {
	in, err := fsys.Open(p, false)
	if err != nil {
		return err
	}
	defer in.Close()

	bfs, name, err := hostPath(hostfile)
	if err != nil {
		return err
	}
	out, err := bfs.Create(name)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "creating %s", hostfile)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, errors.CodeInternal, "writing %s", hostfile)
	}
	return out.Close()
}

func arg(ctx *cli.Context, i int) (string, error) {
	if ctx.NArg() <= i {
		return "", errors.Newf(errors.CodeInvalidInput, "usage: %s %s %s", appName, ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	return ctx.Args().Get(i), nil
}

func needArgs(ctx *cli.Context, n int) ([]string, error) {
	if ctx.NArg() != n {
		return nil, errors.Newf(errors.CodeInvalidInput, "usage: %s %s %s", appName, ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	return ctx.Args().Slice(), nil
}

// each applies op to every argument, stopping at the first failure.
func each(ctx *cli.Context, op func(string) error) error {
	if ctx.NArg() == 0 {
		return errors.Newf(errors.CodeInvalidInput, "usage: %s %s %s", appName, ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	for _, p := range ctx.Args().Slice() {
		if err := op(p); err != nil {
			return errors.Wrapf(err, errors.GetCode(err), "%s", p)
		}
	}
	return nil
}
