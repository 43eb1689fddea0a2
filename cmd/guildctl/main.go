// Command guildctl is a terminal client for guildhall. Session is kept in a local SQLite file
// between invocations, access token is refreshed transparently.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/guildhall/internal/client"
	"github.com/nkiryanov/guildhall/internal/client/session"
)

const defaultServer = "http://localhost:8000"

var errUsage = errors.New("usage: guildctl [--server URL] [--session PATH] <login|register|me|logout> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "guildctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("guildctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	server := fs.StringP("server", "s", envOr(getenv, "GUILDHALL_URL", defaultServer), "guildhall base URL")
	sessionPath := fs.String("session", envOr(getenv, "GUILDCTL_SESSION", defaultSessionPath()), "Session file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	if err := os.MkdirAll(filepath.Dir(*sessionPath), 0o700); err != nil {
		return fmt.Errorf("can't create session directory: %w", err)
	}
	store, err := session.OpenSQLite(ctx, *sessionPath)
	if err != nil {
		return err
	}
	defer store.Close()

	c := client.New(*server, store, client.WithOnLogout(func() {
		fmt.Fprintln(stdout, "Session expired, please login again")
	}))

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return login(ctx, c, cmdArgs, stdout, getenv)
	case "register":
		return register(ctx, c, cmdArgs, stdout, getenv)
	case "me":
		return me(ctx, c, cmdArgs, stdout)
	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(stdout, "Logged out")
		return err
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

func login(ctx context.Context, c *client.Client, args []string, stdout io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.StringP("email", "e", "", "Account email")
	password := fs.StringP("password", "p", getenv("GUILDCTL_PASSWORD"), "Account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := c.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return printUser(stdout, u)
}

func register(ctx context.Context, c *client.Client, args []string, stdout io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	username := fs.StringP("username", "u", "", "Username")
	email := fs.StringP("email", "e", "", "Account email")
	password := fs.StringP("password", "p", getenv("GUILDCTL_PASSWORD"), "Account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := c.Register(ctx, *username, *email, *password)
	if err != nil {
		return err
	}
	return printUser(stdout, u)
}

func me(ctx context.Context, c *client.Client, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("me", pflag.ContinueOnError)
	cached := fs.Bool("cached", false, "Print stored user snapshot without asking server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *cached {
		u, err := c.CurrentUser(ctx)
		if err != nil {
			return err
		}
		if u == nil {
			return errors.New("not logged in")
		}
		return printUser(stdout, *u)
	}

	u, err := c.Me(ctx)
	if err != nil {
		return err
	}
	return printUser(stdout, u)
}

func printUser(w io.Writer, u session.User) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(u)
}

func envOr(getenv func(string) string, key string, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "guildhall", "session.db")
}
