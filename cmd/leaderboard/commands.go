package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	apihttp "leaderboard-kinetics/internal/api/http"
	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/storage"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		tag     string
		input   string
		preview bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the pipeline over a batch of snapshots",
		Long: "Reads snapshots from --input (JSON array or newline-delimited JSON, '-' for stdin),\n" +
			"runs the full pipeline for --tag and prints the result.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch, err := readSnapshotsFrom(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			c, err := root.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			run := c.Engine.Ingest
			if preview {
				run = c.Engine.Preview
			}
			res, err := run(cmd.Context(), tag, batch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), apihttp.IngestResponse{
				CorrelationID: res.CorrelationID,
				Tag:           res.Tag,
				Mode:          res.Mode,
				Summary:       res.Summary,
				Leaderboard:   res.Leaderboard,
			})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "leaderboard tag (required)")
	cmd.Flags().StringVar(&input, "input", "-", "snapshot file, '-' for stdin")
	cmd.Flags().BoolVar(&preview, "preview", false, "run without persisting the leaderboard")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var (
		tag   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a persisted leaderboard, or the list of tags without --tag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if tag == "" {
				tags, ok, err := c.Tags(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("leaderboard store cannot list tags; pass --tag")
				}
				return printJSON(cmd.OutOrStdout(), map[string][]string{"tags": tags})
			}

			entries, err := c.Engine.Leaderboard(cmd.Context(), tag)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return printJSON(cmd.OutOrStdout(), apihttp.LeaderboardResponse{Tag: tag, Count: len(entries), Entries: entries})
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "leaderboard tag")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many entries")
	return cmd
}

func newPruneCmd(root *rootOptions) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy to a persisted leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Engine.Prune(cmd.Context(), tag)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Summary)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "leaderboard tag (required)")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve leaderboards and batch ingestion over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			cfg := c.Config.HTTP
			if addr != "" {
				cfg.Addr = addr
			}
			tags, _ := c.Leaderboards.(storage.TagLister)

			srv := apihttp.NewServer(apihttp.Config{
				Addr:             cfg.Addr,
				ReadTimeout:      cfg.ReadTimeout,
				WriteTimeout:     cfg.WriteTimeout,
				MaxBodyBytes:     cfg.MaxBodyBytes,
				IngestRatePerSec: cfg.IngestRatePerSec,
				IngestBurst:      cfg.IngestBurst,
			}, apihttp.Deps{
				Pipeline:      c.Engine,
				Tags:          tags,
				Publisher:     c.Publisher,
				Stream:        c.Hub,
				SubjectPrefix: c.Config.PubSub.NATS.SubjectPrefix,
				Metrics:       c.Metrics,
				Gatherer:      c.Registry,
				Log:           c.Log,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	return cmd
}

func readSnapshotsFrom(stdin io.Reader, path string) ([]domain.Snapshot, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeSnapshots(r)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
