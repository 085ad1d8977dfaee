package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ar "github.com/panyam/authrepo"
)

// userView is what the CLI prints about an account.  Credentials are left out.
type userView struct {
	ID           string            `json:"id"`
	UserName     string            `json:"username,omitempty"`
	Email        string            `json:"email,omitempty"`
	DisplayName  string            `json:"display_name,omitempty"`
	Roles        []string          `json:"roles,omitempty"`
	Permissions  []string          `json:"permissions,omitempty"`
	Providers    []string          `json:"providers,omitempty"`
	Meta         map[string]string `json:"meta,omitempty"`
	CreatedDate  time.Time         `json:"created_date"`
	ModifiedDate time.Time         `json:"modified_date"`
}

func newUserView(user *ar.UserAuth, links []*ar.UserOAuthProvider) userView {
	view := userView{
		ID:           user.ID,
		UserName:     user.UserName,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Roles:        user.Roles,
		Permissions:  user.Permissions,
		Meta:         user.Meta,
		CreatedDate:  user.CreatedDate,
		ModifiedDate: user.ModifiedDate,
	}
	for _, link := range links {
		view.Providers = append(view.Providers, link.Provider+":"+link.UserID)
	}
	return view
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPassword returns flagValue, or the first line of stdin when it is empty.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no password given")
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create, inspect and authenticate accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserShowCmd())
	cmd.AddCommand(newUserAuthenticateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var userName, email, displayName, password, roles, permissions string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a password account",
		Long: `Create a password account.  The password is read from --password or,
when that is empty, from the first line of standard input.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			return withRepository(cmd, func(repo *ar.Repository) error {
				user, err := repo.CreateUserAuth(&ar.UserAuth{
					UserName:    userName,
					Email:       email,
					DisplayName: displayName,
					Roles:       ar.ParseRoles(roles),
					Permissions: ar.ParseRoles(permissions),
				}, secret)
				if err != nil {
					return err
				}
				return printJSON(cmd, newUserView(user, nil))
			})
		},
	}
	cmd.Flags().StringVar(&userName, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (default: read from stdin)")
	cmd.Flags().StringVar(&roles, "roles", "", "comma separated roles")
	cmd.Flags().StringVar(&permissions, "permissions", "", "comma separated permissions")
	return cmd
}

func newUserShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <username|email|id>",
		Short: "Print an account and its provider links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, func(repo *ar.Repository) error {
				user, err := repo.GetUserAuthByUserName(args[0])
				if ar.IsNotFound(err) {
					user, err = repo.GetUserAuth(args[0])
				}
				if err != nil {
					return fmt.Errorf("looking up %q: %w", args[0], err)
				}
				links, err := repo.GetUserOAuthProviders(user.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd, newUserView(user, links))
			})
		},
	}
}

func newUserAuthenticateCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "authenticate <username|email>",
		Short: "Check a password against an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			return withRepository(cmd, func(repo *ar.Repository) error {
				user, err := repo.TryAuthenticate(args[0], secret)
				if err != nil {
					return err
				}
				cmd.Printf("Authenticated %s\n", user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (default: read from stdin)")
	return cmd
}
