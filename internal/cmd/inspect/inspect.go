package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/config"
	"github.com/chirino/case-recorder/internal/model"
	"github.com/chirino/case-recorder/internal/plugin/store/sqlite"
	registrycache "github.com/chirino/case-recorder/internal/registry/cache"
	"github.com/chirino/case-recorder/internal/service"
	"github.com/urfave/cli/v3"

	_ "github.com/chirino/case-recorder/internal/plugin/cache/local"
	_ "github.com/chirino/case-recorder/internal/plugin/cache/noop"
)

// Command returns the inspect sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "inspect",
		Usage: "Decode a local recording file and print it as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Sources:     cli.EnvVars("CASE_RECORDER_RECORD_FILE"),
				Destination: &cfg.RecordFile,
				Usage:       "Recording file to read",
				Required:    true,
			},
			&cli.DurationFlag{
				Name:        "query-timeout",
				Destination: &cfg.QueryTimeout,
				Value:       cfg.QueryTimeout,
				Usage:       "Upper bound on a single query (env CASE_RECORDER_QUERY_TIMEOUT also accepts PT30S)",
			},
			&cli.StringFlag{
				Name:        "cache-kind",
				Sources:     cli.EnvVars("CASE_RECORDER_CACHE_KIND"),
				Destination: &cfg.CacheType,
				Value:       cfg.CacheType,
				Usage:       "Decoded iteration cache (none|local)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "iterations",
				Usage: "Print decoded driver iterations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "system", Usage: "Print system iterations with residuals instead"},
				},
				Action: withSession(&cfg, func(ctx context.Context, cmd *cli.Command, s *session) (any, error) {
					if cmd.Bool("system") {
						return s.iterations.SystemIterations(ctx, 0)
					}
					return s.iterations.DriverIterations(ctx, 0)
				}),
			},
			{
				Name:  "variables",
				Usage: "List recorded variable names by group",
				Action: withSession(&cfg, func(ctx context.Context, _ *cli.Command, s *session) (any, error) {
					return s.iterations.Variables(ctx, 0)
				}),
			},
			{
				Name:  "history",
				Usage: "Print every driver sample of one variable",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "variable", Usage: "Variable name", Required: true},
					&cli.Int64Flag{Name: "since", Usage: "Print nothing unless a newer counter exists", Value: -1},
				},
				Action: withSession(&cfg, func(ctx context.Context, cmd *cli.Command, s *session) (any, error) {
					if since := cmd.Int64("since"); since >= 0 {
						return s.iterations.VariableHistorySince(ctx, 0, cmd.String("variable"), since)
					}
					return s.iterations.VariableHistory(ctx, 0, cmd.String("variable"))
				}),
			},
			{
				Name:  "new-data",
				Usage: "Report whether iterations newer than a counter exist",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "since", Usage: "Last counter seen", Value: -1},
					&cli.BoolFlag{Name: "system", Usage: "Check system iterations instead"},
				},
				Action: withSession(&cfg, func(ctx context.Context, cmd *cli.Command, s *session) (any, error) {
					coll := model.CollectionDriverIterations
					if cmd.Bool("system") {
						coll = model.CollectionSystemIterations
					}
					fresh, err := s.changes.HasNewDataIn(ctx, coll, 0, cmd.Int64("since"))
					return map[string]bool{"new_data": fresh}, err
				}),
			},
			{
				Name:  "metadata",
				Usage: "Print abs2prom and prom2abs",
				Action: withSession(&cfg, func(ctx context.Context, _ *cli.Command, s *session) (any, error) {
					meta, err := s.iterations.Metadata(ctx, 0)
					if err != nil {
						return nil, err
					}
					return map[string]any{"abs2prom": meta.Abs2Prom, "prom2abs": meta.Prom2Abs}, nil
				}),
			},
			{
				Name:  "layout",
				Usage: "Print the saved layout",
				Action: withSession(&cfg, func(ctx context.Context, _ *cli.Command, s *session) (any, error) {
					return s.file.Layouts(ctx)
				}),
			},
			{
				Name:  "set-layout",
				Usage: "Replace the saved layout",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "layout", Usage: "Layout as a JSON document", Required: true},
				},
				Action: withSession(&cfg, func(ctx context.Context, cmd *cli.Command, s *session) (any, error) {
					layout, err := model.ParseJSON([]byte(cmd.String("layout")))
					if err != nil {
						return nil, fmt.Errorf("invalid layout: %w", err)
					}
					if err := s.file.UpdateLayout(ctx, layout); err != nil {
						return nil, err
					}
					return layout, nil
				}),
			},
			{
				Name:  "driver-metadata",
				Usage: "Print the model viewer data recorded by the driver",
				Action: withSession(&cfg, func(ctx context.Context, _ *cli.Command, s *session) (any, error) {
					return s.file.DriverMetadataList(ctx)
				}),
			},
		},
	}
}

type session struct {
	file       *sqlite.RecordFile
	iterations *service.IterationService
	changes    *service.ChangeTracker
}

func open(ctx context.Context, cfg *config.Config) (*session, error) {
	loader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		return nil, err
	}
	cache, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	file := sqlite.New(cfg.QueryTimeout)
	if err := file.Connect(ctx, cfg.RecordFile); err != nil {
		return nil, err
	}
	return &session{
		file:       file,
		iterations: service.NewIterationService(file, cache, cfg.CacheTTL),
		changes:    service.NewChangeTracker(file),
	}, nil
}

type action func(ctx context.Context, cmd *cli.Command, s *session) (any, error)

func withSession(cfg *config.Config, fn action) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}
		ctx = config.WithContext(ctx, cfg)
		s, err := open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.file.Disconnect(); err != nil {
				log.Warn("Failed to close recording file", "err", err)
			}
		}()

		out, err := fn(ctx, cmd, s)
		if err != nil {
			return err
		}
		return write(cmd.Root().Writer, out)
	}
}

func write(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
