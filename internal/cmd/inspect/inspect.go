// Package inspect holds the read-only commands that query the checkpoint
// collection.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/archive"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/config"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/render"
	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Root returns the chat-archive command tree. Without a sub-command it runs
// the threads query.
func Root() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:     "chat-archive",
		Usage:    "Inspect chat agent conversation checkpoints stored in MongoDB",
		Flags:    Flags(&cfg),
		Before:   Before(&cfg),
		Action:   ThreadsAction,
		Commands: Commands(),
	}
}

// Commands returns every archive sub-command.
func Commands() []*cli.Command {
	return []*cli.Command{
		ThreadsCommand(),
		{
			Name:  "thread-ids",
			Usage: "List distinct thread identifiers",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withArchive(ctx, cmd, "thread ids", func(ctx context.Context, a *archive.Archive) (any, int, error) {
					ids, err := a.ThreadIDs(ctx)
					return ids, len(ids), err
				})
			},
		},
		{
			Name:  "checkpoints",
			Usage: "Print stored checkpoint documents",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "thread",
					Usage: "Only checkpoints of this thread",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				thread := cmd.String("thread")
				return withArchive(ctx, cmd, "checkpoints", func(ctx context.Context, a *archive.Archive) (any, int, error) {
					cps, err := a.Checkpoints(ctx, thread)
					return cps, len(cps), err
				})
			},
		},
		{
			Name:  "latest",
			Usage: "Print the newest root checkpoint of a thread",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "thread",
					Usage:    "Thread identifier",
					Required: true,
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				thread := cmd.String("thread")
				return withArchive(ctx, cmd, "checkpoints", func(ctx context.Context, a *archive.Archive) (any, int, error) {
					cp, err := a.LatestCheckpoint(ctx, thread)
					return cp, 1, err
				})
			},
		},
		{
			Name:  "sessions",
			Usage: "List archived sessions with their first human message, newest first",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withArchive(ctx, cmd, "sessions", func(ctx context.Context, a *archive.Archive) (any, int, error) {
					sessions, err := a.Sessions(ctx)
					return sessions, len(sessions), err
				})
			},
		},
		{
			Name:  "pipeline",
			Usage: "Print the first-checkpoint aggregation pipeline without running it",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.FromContext(ctx)
				stages, err := pipelineJSON(cfg)
				if err != nil {
					return err
				}
				return render.Write(cmd.Root().Writer, cfg.Output, cfg.JQ, stages)
			},
		},
	}
}

// ThreadsCommand lists each thread with its first stored checkpoint. It is
// also the root command's default action.
func ThreadsCommand() *cli.Command {
	return &cli.Command{
		Name:   "threads",
		Usage:  "List threads with their first checkpoint",
		Action: ThreadsAction,
	}
}

// ThreadsAction runs the first-checkpoint aggregation.
func ThreadsAction(ctx context.Context, cmd *cli.Command) error {
	return withArchive(ctx, cmd, "threads", func(ctx context.Context, a *archive.Archive) (any, int, error) {
		rows, err := a.FirstCheckpoints(ctx)
		return rows, len(rows), err
	})
}

type query func(ctx context.Context, a *archive.Archive) (result any, count int, err error)

// withArchive opens the archive under the configured deadline, runs q and
// prints its result. noun names what q counts in the timing log line.
func withArchive(ctx context.Context, cmd *cli.Command, noun string, q query) error {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return fmt.Errorf("missing config in context")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	log.Debug("Opening checkpoint archive", "database", cfg.Database, "collection", cfg.Collection)
	a, err := archive.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn("Failed to disconnect from MongoDB", "err", err)
		}
	}()

	start := time.Now()
	result, count, err := q(ctx, a)
	if err != nil {
		return err
	}
	log.Info(foundMessage(count, noun, time.Since(start)), "command", cmd.Name)

	return render.Write(cmd.Root().Writer, cfg.Output, cfg.JQ, result)
}

// foundMessage formats the timing line, e.g. "Found 3 threads in 0.042s".
func foundMessage(count int, noun string, elapsed time.Duration) string {
	return fmt.Sprintf("Found %d %s in %.3fs", count, noun, elapsed.Seconds())
}

// pipelineJSON renders the aggregation stages as relaxed extended JSON.
func pipelineJSON(cfg *config.Config) ([]json.RawMessage, error) {
	p := archive.FirstCheckpointPipeline(cfg.ThreadField, cfg.CheckpointField)
	stages := make([]json.RawMessage, 0, len(p))
	for _, stage := range p {
		data, err := bson.MarshalExtJSON(stage, false, false)
		if err != nil {
			return nil, fmt.Errorf("failed to encode pipeline stage: %w", err)
		}
		stages = append(stages, data)
	}
	return stages, nil
}
