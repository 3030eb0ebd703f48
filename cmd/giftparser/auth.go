package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitrodev1/telegram-gift-parser/pkg/auth"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/provider"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage provider sessions",
	Long:  `Sign in to the identity provider and manage stored sessions.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Sign in and store the session",
	Long: `Sign in with a phone number, login code and optional two-step
password. The resulting session is stored in the system keychain or an
encrypted file under the given profile name (default "default").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var logoutAll bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored session")
}

func profileArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "default"
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	auth.ShowSignInGuide(os.Stderr)

	p := newTerminalPrompter()
	account := &auth.Account{
		Name:    profileArg(args),
		Phone:   cfg.Provider.Phone,
		APIID:   cfg.Provider.APIID,
		APIHash: cfg.Provider.APIHash,
	}
	if err := promptAccount(p, account); err != nil {
		return err
	}

	client := provider.NewClient(provider.Options{
		BaseURL: cfg.Provider.APIBaseURL,
		Channel: cfg.Provider.Channel,
		APIID:   account.APIID,
		APIHash: account.APIHash,
		Timeout: cfg.Provider.RequestTimeout,
	}, log)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	signIn := newSignInFunc(client, p, nil, account, log)
	if err := signIn(ctx); err != nil {
		return err
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess(os.Stderr, fmt.Sprintf("Signed in, session stored as profile %q", account.Name))
	return nil
}

// promptAccount asks for the API credentials that are still missing
func promptAccount(p prompter, account *auth.Account) error {
	var err error
	if account.APIID == "" {
		if account.APIID, err = p.ReadLine("API ID"); err != nil {
			return err
		}
	}
	if account.APIHash == "" {
		if account.APIHash, err = p.ReadSecret("API hash"); err != nil {
			return err
		}
	}
	if account.APIID == "" || account.APIHash == "" {
		return fmt.Errorf("API ID and API hash are required")
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	if logoutAll {
		if err := manager.DeleteAll(); err != nil {
			return err
		}
		ui.PrintSuccess(os.Stderr, "All stored sessions removed")
		return nil
	}

	name := profileArg(args)
	if err := manager.Delete(name); err != nil {
		return err
	}
	ui.PrintSuccess(os.Stderr, fmt.Sprintf("Session %q removed", name))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintln(os.Stdout, "No stored sessions. Run 'giftparser auth login' to add one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tPHONE\tAPI ID\tSESSION\tMODIFIED")
	for _, account := range accounts {
		safe := auth.SanitizeAccount(account)
		modified := "-"
		if !safe.LastModified.IsZero() {
			modified = safe.LastModified.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", safe.Name, safe.Phone, safe.APIID, safe.SessionToken, modified)
	}
	return w.Flush()
}
