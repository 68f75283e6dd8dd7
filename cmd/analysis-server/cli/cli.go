// Package cli holds the maintenance commands of analysis-server: database
// management and token issuing.
package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"chessanalysis/internal/server/config"
	"chessanalysis/internal/server/service"
	"chessanalysis/internal/server/storage"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewDBCommand returns the "db" command tree
func NewDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the game ledger database",
	}

	var path string
	cmd.PersistentFlags().StringVar(&path, "path", "", "Database file path (required)")
	cmd.MarkPersistentFlagRequired("path")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the database schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runInit(cmd.OutOrStdout(), path)
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete the database file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDelete(cmd.OutOrStdout(), path)
			},
		},
		newQueryCommand(&path),
	)

	return cmd
}

func newQueryCommand(path *string) *cobra.Command {
	var gameID, ownerID string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.OutOrStdout(), *path, gameID, ownerID)
		},
	}
	cmd.Flags().StringVar(&gameID, "gameId", "", "Game ID to filter (optional, * for all)")
	cmd.Flags().StringVar(&ownerID, "ownerId", "", "Owner ID to filter (optional, * for all)")

	return cmd
}

func runInit(out io.Writer, path string) error {
	store, err := storage.NewStore(path, false, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fmt.Fprintf(out, "Database initialized at: %s\n", path)
	return nil
}

func runDelete(out io.Writer, path string) error {
	store, err := storage.NewStore(path, false, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Fprintf(out, "Database deleted: %s\n", path)
	return nil
}

func runQuery(out io.Writer, path, gameID, ownerID string) error {
	store, err := storage.NewStore(path, false, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	games, err := store.QueryGames(gameID, ownerID)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(games) == 0 {
		fmt.Fprintln(out, "No games found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Game ID\tOwner\tResult\tMoves\tCreated")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, g := range games {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			g.GameID,
			g.OwnerID,
			g.Result,
			g.MoveCount,
			g.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nFound %d game(s)\n", len(games))
	return nil
}

// NewTokenCommand returns the "token" command. secret is resolved when the
// command runs so config files and environment are honoured.
func NewTokenCommand(secret func() (string, error)) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := secret()
			if err != nil {
				return err
			}
			if s == "" {
				return fmt.Errorf("no signing secret configured: set auth.jwt_secret or %s", config.EnvJWTSecret)
			}

			token, err := service.New(nil, []byte(s)).GenerateUserToken(userID, ttl)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID the token identifies (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", service.DefaultTokenTTL, "Token lifetime")
	cmd.MarkFlagRequired("user")

	return cmd
}
