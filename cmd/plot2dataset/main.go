package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/plot2dataset"
	"github.com/menta2k/plot2dataset/internal/app"
	"github.com/menta2k/plot2dataset/internal/config"
	"github.com/menta2k/plot2dataset/internal/logging"
	"github.com/menta2k/plot2dataset/internal/utils"
	"github.com/menta2k/plot2dataset/pkg/response"
	"github.com/menta2k/plot2dataset/pkg/server"
	"github.com/menta2k/plot2dataset/pkg/table"
	"github.com/menta2k/plot2dataset/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("plot2dataset failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "plot2dataset",
		Usage:   "extract the data table behind a chart image",
		Version: plot2dataset.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (.yaml, .yml or .json)", EnvVars: []string{"PLOT2DATASET_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "auto, json or console"},
			&cli.StringFlag{Name: "backend", Usage: "inference backend: deplot, ollama or llamacpp"},
			&cli.StringFlag{Name: "url", Usage: "inference backend URL"},
			&cli.StringFlag{Name: "model", Usage: "model name (ollama, llamacpp)"},
			&cli.StringFlag{Name: "root", Usage: "directory or afs URL backing the local namespace"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			extractCommand(),
			configCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address", EnvVars: []string{"PLOT2DATASET_ADDR"}},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Server.Addr = c.String("addr")
			}

			extractor, err := app.NewExtractor(cfg)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			log.Info().
				Str("backend", cfg.Engine.Backend).
				Str("engine_url", cfg.Engine.URL).
				Str("root", cfg.Storage.Root).
				Msg("starting plot2dataset")
			return server.Serve(c.Context, cfg.Server.Addr, server.NewRouter(extractor), cfg.Server.ShutdownTimeout.Std())
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract tables from image references or a directory of charts",
		ArgsUsage: "[reference...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "extract every image under this directory"},
			&cli.StringFlag{Name: "csv", Usage: "write one CSV file per successful extraction into this directory"},
			&cli.IntFlag{Name: "jobs", Aliases: []string{"j"}, Value: 1, Usage: "references processed concurrently"},
		},
		Action: runExtract,
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "write the default configuration",
				ArgsUsage: "[path]",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						path = config.GetConfigPath()
					}
					if utils.FileExists(path) {
						return fmt.Errorf("%s already exists", path)
					}
					if err := config.Default().SaveToFile(path); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print the effective configuration",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					return writeJSON(c, cfg)
				},
			},
		},
	}
}

type extraction struct {
	Reference string       `json:"reference"`
	Result    types.Result `json:"result"`
	CSV       string       `json:"csv,omitempty"`
	CSVError  string       `json:"csvError,omitempty"`
}

func runExtract(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	refs := c.Args().Slice()
	if dir := c.String("dir"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if filepath.Dir(abs) == abs {
			return fmt.Errorf("--dir cannot be the filesystem root")
		}
		// The directory becomes the local namespace so its files resolve as local references
		cfg.Storage.Root = filepath.Dir(abs)
		cfg.Storage.Namespace = filepath.Base(abs) + "/"

		files, err := utils.ListImageFiles(abs)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, f := range files {
			rel, err := filepath.Rel(abs, f)
			if err != nil {
				return err
			}
			refs = append(refs, cfg.Storage.Namespace+filepath.ToSlash(rel))
		}
	}
	if len(refs) == 0 {
		return cli.Exit("no image references given", 2)
	}

	csvDir := c.String("csv")
	var csvNames []string
	if csvDir != "" {
		if err := utils.EnsureDir(csvDir); err != nil {
			return fmt.Errorf("failed to create %s: %w", csvDir, err)
		}
		csvNames = utils.GenerateOutputFilenames(refs, cfg.Storage.Namespace, csvDir, "csv")
	}

	extractor, err := app.NewExtractor(cfg)
	if err != nil {
		return err
	}

	out := make([]extraction, len(refs))
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(max(c.Int("jobs"), 1))
	for i, ref := range refs {
		g.Go(func() error {
			outcome, err := extractor.Run(ctx, ref)
			if err != nil {
				log.Warn().Err(err).Str("reference", ref).Msg("extraction failed")
			}
			out[i] = extraction{
				Reference: ref,
				Result:    response.Assemble(outcome.Table.Records, outcome.RawText, err),
			}
			if err == nil && csvNames != nil {
				if err := writeCSVFile(csvNames[i], outcome.Table); err != nil {
					log.Warn().Err(err).Str("reference", ref).Msg("csv export failed")
					out[i].CSVError = err.Error()
				} else {
					out[i].CSV = csvNames[i]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, e := range out {
		if !e.Result.Success || e.CSVError != "" {
			failed++
		}
	}
	if err := writeJSON(c, out); err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d extractions failed", failed, len(out)), 1)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if path := config.GetConfigPath(); utils.FileExists(path) {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("backend") {
		cfg.Engine.Backend = strings.ToLower(c.String("backend"))
	}
	if c.IsSet("url") {
		cfg.Engine.URL = c.String("url")
	}
	if c.IsSet("model") {
		cfg.Engine.Model = c.String("model")
	}
	if c.IsSet("root") {
		cfg.Storage.Root = c.String("root")
	}

	if err := logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeCSVFile(name string, t table.Table) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := table.WriteCSV(f, t); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}

// writeJSON pretty-prints when writing to a terminal
func writeJSON(c *cli.Context, v any) error {
	var (
		data []byte
		err  error
	)
	if f, ok := c.App.Writer.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}
