package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fundscout/scout/internal/llm"
	"github.com/fundscout/scout/internal/models"
	"github.com/fundscout/scout/internal/output"
	"github.com/fundscout/scout/internal/recovery"
	"github.com/fundscout/scout/internal/store"
)

var defaultTracks = []string{"government", "foundation", "corporate"}

// NewDiscoverCmd creates the discover command group.
func NewDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run and manage discovery sessions",
		Long:  "Start, finish, and inspect discovery sessions, or run the full pipeline",
	}

	cmd.AddCommand(newDiscoverStartCmd())
	cmd.AddCommand(newDiscoverCompleteCmd())
	cmd.AddCommand(newDiscoverFailCmd())
	cmd.AddCommand(newDiscoverStatusCmd())
	cmd.AddCommand(newDiscoverRunCmd())

	return cmd
}

func parseTracks(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaultTracks
	}
	var tracks []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

func newDiscoverStartCmd() *cobra.Command {
	var tracksFlag string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a discovery session (acquires the entity's lock)",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, _ := cmd.Flags().GetString("entity")
			if entityID == "" {
				return cmdErr(errors.New("--entity is required"))
			}

			var session *models.Session
			if err := withDB(func(db *DB) error {
				tracker, err := newTracker(db)
				if err != nil {
					return err
				}
				session, err = tracker.Start(cmd.Context(), entityID, parseTracks(tracksFlag))
				return err
			}); err != nil {
				return err
			}

			return output.PrintSuccess(session)
		},
	}

	cmd.Flags().String("entity", "", "Entity ID (required)")
	cmd.Flags().StringVar(&tracksFlag, "tracks", "", "Comma-separated discovery tracks (default: government,foundation,corporate)")

	return cmd
}

func newDiscoverCompleteCmd() *cobra.Command {
	var (
		tracksExecuted int
		opportunities  int
		executionTime  float64
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete a discovery session and release its lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			if sessionID == "" {
				return cmdErr(errors.New("--session is required"))
			}

			var session *models.Session
			if err := withDB(func(db *DB) error {
				tracker, err := newTracker(db)
				if err != nil {
					return err
				}
				if err := tracker.Complete(cmd.Context(), sessionID, models.SessionResults{
					TracksExecuted:     tracksExecuted,
					OpportunitiesFound: opportunities,
					ExecutionTime:      executionTime,
				}); err != nil {
					return err
				}
				session, err = store.GetSession(db, sessionID)
				return err
			}); err != nil {
				return err
			}

			return output.PrintSuccess(session)
		},
	}

	cmd.Flags().String("session", "", "Session ID (required)")
	cmd.Flags().IntVar(&tracksExecuted, "tracks-executed", 0, "Number of tracks executed")
	cmd.Flags().IntVar(&opportunities, "opportunities", 0, "Number of opportunities found")
	cmd.Flags().Float64Var(&executionTime, "execution-time", 0, "Execution time in seconds")

	return cmd
}

func newDiscoverFailCmd() *cobra.Command {
	var errorMessages []string

	cmd := &cobra.Command{
		Use:   "fail",
		Short: "Fail a discovery session and release its lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			if sessionID == "" {
				return cmdErr(errors.New("--session is required"))
			}

			var session *models.Session
			if err := withDB(func(db *DB) error {
				tracker, err := newTracker(db)
				if err != nil {
					return err
				}
				if err := tracker.Fail(cmd.Context(), sessionID, errorMessages); err != nil {
					return err
				}
				session, err = store.GetSession(db, sessionID)
				return err
			}); err != nil {
				return err
			}

			return output.PrintSuccess(session)
		},
	}

	cmd.Flags().String("session", "", "Session ID (required)")
	cmd.Flags().StringArrayVar(&errorMessages, "error", nil, "Error message (repeatable)")

	return cmd
}

func newDiscoverStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a discovery is in flight for an entity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, _ := cmd.Flags().GetString("entity")
			if entityID == "" && len(args) == 1 {
				entityID = args[0]
			}
			if entityID == "" {
				return cmdErr(errors.New("--entity is required"))
			}

			var inProgress bool
			var repairs int64
			if err := withDB(func(db *DB) error {
				tracker, err := newTracker(db)
				if err != nil {
					return err
				}
				inProgress, err = tracker.InProgress(cmd.Context(), entityID)
				repairs = tracker.StaleRepairs()
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				EntityID     string `json:"entity_id"`
				InProgress   bool   `json:"in_progress"`
				StaleRepairs int64  `json:"stale_repairs,omitempty"`
			}
			return output.PrintSuccess(resp{EntityID: entityID, InProgress: inProgress, StaleRepairs: repairs})
		},
	}

	cmd.Flags().String("entity", "", "Entity ID (required)")

	return cmd
}

func newDiscoverRunCmd() *cobra.Command {
	var (
		tracksFlag string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full discovery pipeline for an entity",
		Long:  "Start a session, execute each track through the AI provider under retry and circuit breaking, then complete or fail it",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, _ := cmd.Flags().GetString("entity")
			if entityID == "" {
				return cmdErr(errors.New("--entity is required"))
			}

			runner, err := llm.NewRunner(provider)
			if err != nil {
				return cmdErr(err)
			}
			mgr := newRecoveryManager()
			tracks := parseTracks(tracksFlag)

			var session *models.Session
			if err := withDB(func(db *DB) error {
				profile, err := store.GetProfile(db, entityID)
				if err != nil {
					return err
				}
				tracker, err := newTracker(db)
				if err != nil {
					return err
				}

				session, err = tracker.Run(cmd.Context(), entityID, tracks,
					func(ctx context.Context, s *models.Session) (models.SessionResults, error) {
						return runTracks(ctx, mgr, runner, profile.Name, tracks)
					})
				return err
			}); err != nil {
				return err
			}

			return output.PrintSuccess(session)
		},
	}

	cmd.Flags().String("entity", "", "Entity ID (required)")
	cmd.Flags().StringVar(&tracksFlag, "tracks", "", "Comma-separated discovery tracks (default: government,foundation,corporate)")
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider CLI: claude, opencode (default: claude)")

	return cmd
}

// runTracks executes each track through the recovery manager and aggregates
// results. A track failure does not abort the remaining tracks; the session
// fails only when every track failed.
func runTracks(ctx context.Context, mgr *recovery.Manager, runner *llm.Runner, orgName string, tracks []string) (models.SessionResults, error) {
	start := time.Now()
	operation := "llm." + runner.Command()

	var results models.SessionResults
	var trackErrs []string
	for _, track := range tracks {
		prompt := llm.TrackPrompt(orgName, track)
		response, err := mgr.Execute(ctx, operation, func(ctx context.Context) (any, error) {
			return runner.Run(ctx, prompt)
		}, recovery.AICallPolicy())
		if err != nil {
			slog.Warn("discovery track failed", "track", track, "error", err.Error())
			trackErrs = append(trackErrs, fmt.Sprintf("track %s: %v", track, err))
			continue
		}

		text, _ := response.(string)
		results.TracksExecuted++
		results.OpportunitiesFound += llm.CountOpportunities(text)
	}

	results.ExecutionTime = time.Since(start).Seconds()
	if results.TracksExecuted == 0 {
		return results, fmt.Errorf("all %d discovery tracks failed: %s",
			len(tracks), strings.Join(trackErrs, "; "))
	}
	return results, nil
}
