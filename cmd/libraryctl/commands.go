package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rongwang/library-rental/internal/app"
	"github.com/rongwang/library-rental/internal/config"
	"github.com/rongwang/library-rental/internal/models"
	"github.com/rongwang/library-rental/internal/utils"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if port > 0 {
				cfg.Server.Port = port
			}
			logger := utils.NewLogger(cfg.Log.Level, cfg.Log.JSON)

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.Serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides SERVER_PORT)")

	return cmd
}

func newCategoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage book categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				category, err := a.Service.CreateCategory(ctx, models.CreateCategoryRequest{Name: args[0]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created category %q with ID %s\n", category.Name, category.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				categories, err := a.Service.ListCategories(ctx)
				if err != nil {
					return err
				}
				for _, c := range categories {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.ID, c.Name)
				}
				return nil
			})
		},
	})

	return cmd
}

func newBookCmd() *cobra.Command {
	var (
		description string
		image       string
		price       string
		categoryIDs []string
	)

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}

	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				book, err := a.Service.CreateBook(ctx, models.CreateBookRequest{
					Title:          args[0],
					Description:    description,
					Image:          image,
					BorrowingPrice: amount,
					CategoryIDs:    categoryIDs,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %q (%s) at %s per loan\n",
					book.Title, book.ID, book.BorrowingPrice.StringFixed(2))
				return nil
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "book description")
	add.Flags().StringVar(&image, "image", "", "cover image URL")
	add.Flags().StringVar(&price, "price", "0", "borrowing price")
	add.Flags().StringSliceVar(&categoryIDs, "category", nil, "category ID (repeatable)")

	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "price <book-id> <price>",
		Short: "Change the borrowing price of a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				book, err := a.Service.UpdateBookPrice(ctx, args[0], amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q now costs %s per loan\n", book.Title, book.BorrowingPrice.StringFixed(2))
				return nil
			})
		},
	})

	return cmd
}

func newUserCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	register := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a user, prompting for the password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(cmd, "Confirm password: ")
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				resp, err := a.Service.SignUp(ctx, models.SignUpRequest{
					Username:  args[0],
					Email:     email,
					Password1: password,
					Password2: confirm,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s with ID %s\n", resp.Username, resp.UserID)
				return nil
			})
		},
	}
	register.Flags().StringVar(&email, "email", "", "email address")
	_ = register.MarkFlagRequired("email")

	cmd.AddCommand(register)

	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and fund user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "deposit <username> <amount>",
		Short: "Deposit money into a user's account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				userID, err := lookupUser(ctx, a, args[0])
				if err != nil {
					return err
				}

				deposit, err := a.Service.Deposit(ctx, userID, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deposited %s, balance is now %s\n",
					deposit.Amount.StringFixed(2), deposit.BalanceAfter.StringFixed(2))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <username>",
		Short: "Show balance and borrowed books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				userID, err := lookupUser(ctx, a, args[0])
				if err != nil {
					return err
				}

				account, err := a.Service.GetAccount(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s\n", account.Balance.StringFixed(2))
				if len(account.BorrowedBooks) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Borrowed: %s\n", strings.Join(account.BorrowedBooks, ", "))
				}
				return nil
			})
		},
	})

	return cmd
}

func lookupUser(ctx context.Context, a *app.App, username string) (string, error) {
	user, err := a.Repository.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("no user named %q", username)
	}
	return user.ID, nil
}

// readPassword prompts for a password without echo. stdin must be a terminal.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password must be entered on a terminal")
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return strings.TrimSpace(string(password)), nil
}
