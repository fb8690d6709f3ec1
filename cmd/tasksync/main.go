package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thompsonmanda08/task-sync-sub001/internal/app"
	"github.com/thompsonmanda08/task-sync-sub001/internal/collab"
	"github.com/thompsonmanda08/task-sync-sub001/internal/config"
	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/session"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("tasksync: %v", err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tasksync",
		Short:         "Shared todo lists from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		loginCmd(), logoutCmd(), whoamiCmd(),
		listsCmd(), addCmd(), doneCmd(), rmCmd(), shareCmd(),
	)
	return root
}

// boot loads config and resolves the persisted session. Commands that need
// a live session pass requireAuth.
func boot(ctx context.Context, requireAuth bool) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := app.New(cfg)
	state, err := a.Start(ctx)
	if err != nil {
		return nil, err
	}
	if requireAuth && state != session.StateAuthenticated {
		return nil, errors.New("not logged in, run: tasksync login")
	}
	return a, nil
}

// await blocks until the server confirmed or rolled back the mutation. The
// stores are optimistic; a CLI process is not, it has nothing to render in
// the meantime.
func await(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(30 * time.Second):
		return errors.New("timed out waiting for server confirmation")
	}
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a := app.New(cfg)
			user, err := a.Sessions.Login(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("logged in as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear local state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := a.Sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), true)
			if err != nil {
				return err
			}
			user, _ := a.Sessions.CurrentUser()
			fmt.Printf("%s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
}

func listsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show lists you can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), true)
			if err != nil {
				return err
			}
			user, _ := a.Sessions.CurrentUser()
			for _, l := range a.Collab.GetListsByUser(user.ID) {
				open := 0
				for _, t := range l.Items {
					if !t.Completed {
						open++
					}
				}
				fmt.Printf("%s  %s  (%d open / %d tasks)\n", l.ID, l.Title, open, len(l.Items))
			}
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var listID, notes string
	cmd := &cobra.Command{
		Use:   "add <task title>",
		Short: "Add a task to a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), true)
			if err != nil {
				return err
			}
			task, ch, err := a.Collab.AddTask(cmd.Context(), listID, args[0], notes, nil)
			if err != nil {
				return err
			}
			if err := await(ch); err != nil {
				return err
			}
			fmt.Printf("added %q\n", task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "list id")
	cmd.Flags().StringVar(&notes, "notes", "", "task notes")
	cmd.MarkFlagRequired("list")
	return cmd
}

func doneCmd() *cobra.Command {
	var listID string
	cmd := &cobra.Command{
		Use:   "done <task id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), true)
			if err != nil {
				return err
			}
			task, ch, err := a.Collab.CompleteTask(cmd.Context(), listID, args[0], true)
			if err != nil {
				return err
			}
			if err := await(ch); err != nil {
				return err
			}
			fmt.Printf("completed %q\n", task.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "list id")
	cmd.MarkFlagRequired("list")
	return cmd
}

func rmCmd() *cobra.Command {
	var listID string
	cmd := &cobra.Command{
		Use:   "rm <task id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), true)
			if err != nil {
				return err
			}
			ch, err := a.Collab.DeleteTask(cmd.Context(), listID, args[0])
			if err != nil {
				return err
			}
			if err := await(ch); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "list id")
	cmd.MarkFlagRequired("list")
	return cmd
}

func shareCmd() *cobra.Command {
	var listID, userID, role string
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Grant a user access to a list",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), true)
			if err != nil {
				return err
			}
			ch, err := a.Collab.UpdateSharing(cmd.Context(), listID, dom.SharedUser{
				UserID: userID,
				Role:   dom.Role(role),
			})
			if err != nil {
				var verr *collab.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("%s (roles: contributor, viewer)", verr)
				}
				return err
			}
			if err := await(ch); err != nil {
				return err
			}
			fmt.Println("sharing updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&listID, "list", "", "list id")
	cmd.Flags().StringVar(&userID, "user", "", "user id to grant")
	cmd.Flags().StringVar(&role, "role", "contributor", "contributor or viewer")
	cmd.MarkFlagRequired("list")
	cmd.MarkFlagRequired("user")
	return cmd
}

func init() {
	// cobra prints to stderr on its own; keep log output consistent.
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
}
