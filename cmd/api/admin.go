package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"sheets/api/internal/authpw"
	"sheets/api/internal/search"
	"sheets/api/internal/store"

	"github.com/spf13/cobra"
)

func openStore(ctx context.Context, cli *cliApp) (*store.PostgresStore, func(), error) {
	db, err := store.Open(ctx, cli.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}

func newSearchService(meiliURL, meiliKey string, db *sql.DB) *search.Service {
	var meiliClient *search.Meili
	if strings.TrimSpace(meiliURL) != "" {
		meiliClient = search.NewMeili(meiliURL, meiliKey)
	}
	return search.NewService(meiliClient, search.NewPgFTS(db))
}

func newMigrateCmd(cli *cliApp) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := store.Open(ctx, cli.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if rollback {
				version, err := store.RollbackLatest(ctx, db, cli.cfg.MigrationsDir)
				if err != nil {
					return err
				}
				if version == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", version)
				return nil
			}
			if err := store.ApplyMigrations(ctx, db, cli.cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the most recently applied migration")
	return cmd
}

func newReindexCmd(cli *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every sheet to the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataStore, closeDB, err := openStore(ctx, cli)
			if err != nil {
				return err
			}
			defer closeDB()

			if strings.TrimSpace(cli.cfg.MeiliURL) == "" {
				return fmt.Errorf("reindex needs MEILI_URL; Postgres full-text search needs no index")
			}
			searchService := newSearchService(cli.cfg.MeiliURL, cli.cfg.MeiliMasterKey, dataStore.DB())
			defer searchService.Close()

			sheets, err := dataStore.ListAllSheets(ctx)
			if err != nil {
				return err
			}
			records := make([]search.SheetRecord, 0, len(sheets))
			for _, sheet := range sheets {
				records = append(records, search.RecordFromSheet(sheet))
			}
			indexed := searchService.ReindexAll(records)
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d of %d sheets\n", indexed, len(sheets))
			return nil
		},
	}
}

func newUserCmd(cli *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserAddCmd(cli))
	cmd.AddCommand(newUserSetPasswordCmd(cli))
	return cmd
}

func newUserAddCmd(cli *cliApp) *cobra.Command {
	var firstName, lastName string
	cmd := &cobra.Command{
		Use:   "add <email> <password>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataStore, closeDB, err := openStore(ctx, cli)
			if err != nil {
				return err
			}
			defer closeDB()

			user, err := authpw.NewService(dataStore).SignUp(ctx, authpw.SignUpRequest{
				Email:     args[0],
				Password:  args[1],
				FirstName: firstName,
				LastName:  lastName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&firstName, "first", "", "First name")
	cmd.Flags().StringVar(&lastName, "last", "", "Last name")
	_ = cmd.MarkFlagRequired("first")
	_ = cmd.MarkFlagRequired("last")
	return cmd
}

func newUserSetPasswordCmd(cli *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <email> <password>",
		Short: "Replace a user's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataStore, closeDB, err := openStore(ctx, cli)
			if err != nil {
				return err
			}
			defer closeDB()

			user, err := dataStore.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return fmt.Errorf("find user %s: %w", args[0], err)
			}
			if err := authpw.NewService(dataStore).SetPassword(ctx, user.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for user %d\n", user.ID)
			return nil
		},
	}
}

func newGroupCmd(cli *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage partner groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataStore, closeDB, err := openStore(ctx, cli)
			if err != nil {
				return err
			}
			defer closeDB()

			group, err := dataStore.CreateGroup(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created group %d (%s)\n", group.ID, group.Name)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add-member <group> <user-id>",
		Short: "Add a user to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[1])
			}
			ctx := cmd.Context()
			dataStore, closeDB, err := openStore(ctx, cli)
			if err != nil {
				return err
			}
			defer closeDB()

			group, err := dataStore.GetGroupByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("find group %s: %w", args[0], err)
			}
			if _, err := dataStore.GetUserByID(ctx, userID); err != nil {
				return fmt.Errorf("find user %d: %w", userID, err)
			}
			if err := dataStore.AddGroupMember(ctx, group.ID, userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added user %d to %s\n", userID, group.Name)
			return nil
		},
	})
	return cmd
}
