package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/nitrodev1/telegram-gift-parser/pkg/auth"
	"github.com/nitrodev1/telegram-gift-parser/pkg/engine"
	errs "github.com/nitrodev1/telegram-gift-parser/pkg/errors"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/provider"
)

// prompter asks the operator for sign-in input
type prompter interface {
	ReadLine(label string) (string, error)
	ReadSecret(label string) (string, error)
}

// terminalPrompter reads from stdin, hiding secrets when stdin is a terminal
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(os.Stdin), out: os.Stderr}
}

func (p *terminalPrompter) ReadLine(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (p *terminalPrompter) ReadSecret(label string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return p.ReadLine(label)
	}

	fmt.Fprintf(p.out, "%s: ", label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// authenticator is the part of the gateway client used to sign in
type authenticator interface {
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code string) (string, error)
	CheckPassword(ctx context.Context, password string) (string, error)
}

// interactiveSignIn walks phone, login code and optional two-step password
// and returns the new session token
func interactiveSignIn(ctx context.Context, client authenticator, p prompter, phone string) (string, string, error) {
	var err error
	if phone == "" {
		phone, err = p.ReadLine("Phone number")
		if err != nil {
			return "", "", err
		}
	}
	if phone == "" {
		return "", "", errs.New(errs.ErrorTypeAuth, 0, "phone number is required to sign in")
	}

	if err := client.SendCode(ctx, phone); err != nil {
		return "", "", fmt.Errorf("failed to request login code: %w", err)
	}

	code, err := p.ReadLine("Login code")
	if err != nil {
		return "", "", err
	}

	token, err := client.SignIn(ctx, phone, code)
	if errors.Is(err, provider.ErrPasswordNeeded) {
		password, perr := p.ReadSecret("Two-step verification password")
		if perr != nil {
			return "", "", perr
		}
		token, err = client.CheckPassword(ctx, password)
	}
	if err != nil {
		return "", "", errs.Wrap(errs.ErrorTypeAuth, err, "sign-in failed")
	}

	return phone, token, nil
}

// newSignInFunc returns the engine hook that signs in interactively and
// persists the fresh session for account
func newSignInFunc(client authenticator, p prompter, manager *auth.Manager, account *auth.Account, log logger.Logger) engine.SignInFunc {
	return func(ctx context.Context) error {
		phone, token, err := interactiveSignIn(ctx, client, p, account.Phone)
		if err != nil {
			return err
		}

		account.Phone = phone
		account.SessionToken = token
		account.LastModified = time.Now()

		if manager == nil {
			return nil
		}
		if err := manager.Store(account); err != nil {
			log.WithError(err).Warn("signed in but the session could not be saved")
			return nil
		}
		log.WithField("profile", account.Name).Info("session saved")
		return nil
	}
}
