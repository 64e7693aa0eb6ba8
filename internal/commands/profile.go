package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fundscout/scout/internal/models"
	"github.com/fundscout/scout/internal/output"
	"github.com/fundscout/scout/internal/store"
)

// NewProfileCmd creates the profile command group.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage organization profiles",
		Long:  "Create and query the organization profiles discovery runs against",
	}

	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileShowCmd())

	return cmd
}

func newProfileAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new organization profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, _ := cmd.Flags().GetString("entity")
			name, _ := cmd.Flags().GetString("name")

			if entityID == "" {
				return cmdErr(errors.New("--entity is required"))
			}
			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}

			var profile *models.OrgProfile
			if err := withDB(func(db *DB) error {
				p, err := store.CreateProfile(db, entityID, name)
				if err != nil {
					return err
				}
				profile = p
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(profile)
		},
	}

	cmd.Flags().String("entity", "", "Entity ID (required)")
	cmd.Flags().String("name", "", "Organization name (required)")

	return cmd
}

func newProfileListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organization profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			var profiles []*models.OrgProfile
			if err := withDB(func(db *DB) error {
				p, err := store.ListProfiles(db, limit)
				if err != nil {
					return err
				}
				profiles = p
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count    int                  `json:"count"`
				Profiles []*models.OrgProfile `json:"profiles"`
			}
			return output.PrintSuccess(resp{Count: len(profiles), Profiles: profiles})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Max profiles to return")

	return cmd
}

func newProfileShowCmd() *cobra.Command {
	var sessionLimit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a profile and its recent discovery sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, _ := cmd.Flags().GetString("entity")
			if entityID != "" && len(args) == 1 {
				return cmdErr(errors.New("provide either --entity or a positional entity id, not both"))
			}
			if entityID == "" && len(args) == 1 {
				entityID = args[0]
			}
			if entityID == "" {
				return cmdErr(errors.New("--entity is required"))
			}

			var profile *models.OrgProfile
			var sessions []*models.Session
			if err := withDB(func(db *DB) error {
				p, err := store.GetProfile(db, entityID)
				if err != nil {
					return err
				}
				profile = p

				sessions, err = store.ListSessions(db, entityID, sessionLimit)
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Profile  *models.OrgProfile `json:"profile"`
				Sessions []*models.Session  `json:"sessions"`
			}
			return output.PrintSuccess(resp{Profile: profile, Sessions: sessions})
		},
	}

	cmd.Flags().String("entity", "", "Entity ID (required)")
	cmd.Flags().IntVar(&sessionLimit, "limit", 10, "Max recent sessions to include")

	return cmd
}
