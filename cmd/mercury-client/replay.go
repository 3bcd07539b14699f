package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"mercury-client/internal/feed"
	"mercury-client/internal/localcache"
	"mercury-client/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	replayNoVerify bool
	replayAuthors  []string
	replayIgnore   []string
	replayLimit    int

	replayCmd = &cobra.Command{
		Use:   "replay [file.jsonl ...]",
		Short: "Feed recorded events through the cache and print the result",
		Long: `Reads newline separated Nostr events (from files or stdin), ingests them
into a fresh cache and prints the cache statistics, the relay plan for the
given authors and their feed.`,
		RunE: runReplay,
	}
)

func init() {
	replayCmd.Flags().BoolVar(&replayNoVerify, "no-verify", false, "skip id and signature checks")
	replayCmd.Flags().StringSliceVar(&replayAuthors, "authors", nil, "authors to plan relays and build a feed for")
	replayCmd.Flags().StringSliceVar(&replayIgnore, "ignore", nil, "relays to leave out of the plan")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 20, "feed size")
}

// ReplayReport is printed by the replay command
type ReplayReport struct {
	Read     int              `json:"read"`
	Stored   int              `json:"stored"`
	Rejected int              `json:"rejected"`
	Stats    localcache.Stats `json:"stats"`
	Plan     *localcache.Plan `json:"plan,omitempty"`
	Feed     []*models.Event  `json:"feed,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, closeLogs, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLogs()

	lc, err := localcache.New(cfg.Cache, cfg.Outbox)
	if err != nil {
		return err
	}

	var report ReplayReport
	if len(args) == 0 {
		if err := replay(lc, cmd.InOrStdin(), &report); err != nil {
			return err
		}
	}
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		err = replay(lc, f, &report)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to replay %s: %w", path, err)
		}
	}
	report.Stats = lc.Stats()

	if len(replayAuthors) > 0 {
		plan := lc.SelectRelays(replayAuthors, replayIgnore)
		report.Plan = &plan

		m := feed.NewMachine[*models.Event](
			localcache.NewAuthorFeedFilter(lc, replayAuthors, nil, replayLimit),
			feed.Options[*models.Event]{Name: "replay", Window: cfg.Feed.Window, IsDeleted: lc.HasBeenDeleted},
		)
		m.Refresh()
		report.Feed = m.CurrentView().Items
		m.Close()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func replay(lc *localcache.LocalCache, r io.Reader, report *ReplayReport) error {
	dec := json.NewDecoder(r)
	for {
		var ev models.Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode event %d: %w", report.Read+1, err)
		}
		report.Read++

		if !replayNoVerify {
			if err := ev.Verify(); err != nil {
				logrus.Warnf("[replay] rejected %s: %v", ev.ID, err)
				report.Rejected++
				continue
			}
		}
		if lc.OnEvent(&ev) {
			report.Stored++
		}
	}
}
