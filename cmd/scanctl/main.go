// scanctl is a door-side client for guestgate.
//
// It signs a device in with the event PIN, feeds scanned codes from stdin to
// the check-in endpoint, and follows the live guest list of the event.
//
// Usage:
//
//	scanctl auth  --server URL --event ID --pin PIN [--device NAME]
//	scanctl scan  --server URL --token TOKEN < codes.txt
//	scanctl watch --server URL --token TOKEN
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const tokenEnv = "GG_SCANNER_TOKEN"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "auth":
		return runAuth(ctx, rest, stdout, stderr)
	case "scan":
		return runScan(ctx, rest, stdin, stdout, stderr)
	case "watch":
		return runWatch(ctx, rest, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type commonFlags struct {
	server  string
	token   string
	timeout time.Duration
}

func newFlagSet(name string, stderr io.Writer, c *commonFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("scanctl "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.server, "server", "http://127.0.0.1:8080", "guestgate base URL")
	fs.DurationVar(&c.timeout, "timeout", 5*time.Second, "per-request timeout")
	return fs
}

func addTokenFlag(fs *pflag.FlagSet, c *commonFlags) {
	fs.StringVar(&c.token, "token", os.Getenv(tokenEnv), "scanner session token (default $"+tokenEnv+")")
}

func runAuth(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		c       commonFlags
		eventID string
		pinCode string
		device  string
	)
	fs := newFlagSet("auth", stderr, &c)
	fs.StringVar(&eventID, "event", "", "event id")
	fs.StringVar(&pinCode, "pin", "", "event PIN (prompted for when omitted on a terminal)")
	fs.StringVar(&device, "device", hostname(), "device label shown in audit logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(eventID) == "" {
		return errors.New("--event is required")
	}
	if pinCode == "" {
		p, err := promptPIN(stderr)
		if err != nil {
			return err
		}
		pinCode = p
	}

	cl := newGateClient(c.server, "", c.timeout)
	sess, err := cl.createSession(ctx, eventID, pinCode, device)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\n", sess.Token)
	fmt.Fprintf(stderr, "signed in to event %s as session %s\n", sess.EventID, sess.SessionID)
	return nil
}

func runScan(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		c        commonFlags
		cooldown time.Duration
		logout   bool
	)
	fs := newFlagSet("scan", stderr, &c)
	addTokenFlag(fs, &c)
	fs.DurationVar(&cooldown, "cooldown", 3*time.Second, "ignore the same code for this long after showing its result")
	fs.BoolVar(&logout, "logout", false, "end the scanner session when input closes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.token == "" {
		return fmt.Errorf("--token or $%s is required", tokenEnv)
	}

	cl := newGateClient(c.server, c.token, c.timeout)
	err := scanLoop(ctx, cl, stdin, stdout, cooldown)
	if logout {
		if lerr := cl.logout(context.WithoutCancel(ctx)); lerr != nil {
			fmt.Fprintf(stderr, "logout: %v\n", lerr)
		}
	}
	return err
}

func runWatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		c      commonFlags
		origin string
		once   bool
	)
	fs := newFlagSet("watch", stderr, &c)
	addTokenFlag(fs, &c)
	fs.StringVar(&origin, "origin", "", "Origin header for the WebSocket handshake")
	fs.BoolVar(&once, "once", false, "exit after the roster snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.token == "" {
		return fmt.Errorf("--token or $%s is required", tokenEnv)
	}

	wsURL, err := liveURL(c.server)
	if err != nil {
		return err
	}
	return watch(ctx, watchOptions{
		URL:     wsURL,
		Token:   c.token,
		Origin:  origin,
		Timeout: c.timeout,
		Once:    once,
	}, stdout)
}

// promptPIN reads the PIN without echo. It refuses to read from a pipe so
// the PIN never ends up in shell history or a script.
func promptPIN(stderr io.Writer) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 -- fd fits in int.
	if !term.IsTerminal(fd) {
		return "", errors.New("--pin is required when stdin is not a terminal")
	}
	fmt.Fprint(stderr, "Event PIN: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("reading pin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "scanctl"
	}
	return h
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `scanctl - guestgate door client

Commands:
  auth   sign a device in with the event PIN and print the session token
  scan   read ticket codes from stdin, one per line, and print OK|DUP|ERR results
  watch  follow the live guest list and print counts as guests arrive

Run "scanctl <command> --help" for flags.
`)
}
