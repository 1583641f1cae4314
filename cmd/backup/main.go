// Command backup exports the encrypted wallet state to a password-protected
// file, or imports one back into the configured storage backend.
//
//	backup export --out wallet.backup.json
//	backup import --in wallet.backup.json
//
// Import refuses to run while the execution host answers on its link: the
// host holds the state lock in its own process and would not see the write.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/akshaybapat6365/dark-wallet/internal/backup"
	"github.com/akshaybapat6365/dark-wallet/internal/config"
	"github.com/akshaybapat6365/dark-wallet/internal/hostlink"
	"github.com/akshaybapat6365/dark-wallet/internal/logger"
	"github.com/akshaybapat6365/dark-wallet/internal/state"
	"github.com/akshaybapat6365/dark-wallet/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: backup <export|import> [flags]\n\n")
	fs.PrintDefaults()
}

func run(args []string) error {
	var (
		outPath string
		inPath  string
	)
	fs := pflag.NewFlagSet("backup", pflag.ContinueOnError)
	fs.StringVarP(&outPath, "out", "o", "", "write the backup here instead of stdout (export)")
	fs.StringVarP(&inPath, "in", "i", "", "backup file to restore (import)")
	fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			usage(fs)
			return nil
		}
		return err
	}
	if help, _ := fs.GetBool("help"); help || fs.NArg() != 1 {
		usage(fs)
		if help {
			return nil
		}
		return errors.New("exactly one subcommand is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storage.Close(store)

	record := state.NewRecord(store, "")
	codec := backup.Codec{}

	switch fs.Arg(0) {
	case "export":
		return export(ctx, codec, record, outPath)
	case "import":
		if inPath == "" {
			return errors.New("--in is required for import")
		}
		dialer, err := hostlink.NewDialer(cfg)
		if err != nil {
			return err
		}
		if err := ensureHostStopped(ctx, dialer); err != nil {
			return err
		}
		return restore(ctx, codec, record, inPath)
	default:
		usage(fs)
		return fmt.Errorf("unknown subcommand %q", fs.Arg(0))
	}
}

func export(ctx context.Context, codec backup.Codec, record *state.Record, outPath string) error {
	password, err := readPassword("Backup password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	blob, err := codec.Export(ctx, record, password)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.WriteString(w, blob+"\n"); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	logger.Info(ctx, "backup exported", "path", outPath)
	return nil
}

// hostProbeTimeout bounds the check for a running host.
const hostProbeTimeout = 2 * time.Second

// ensureHostStopped fails when the execution host accepts a connection.
func ensureHostStopped(ctx context.Context, d hostlink.Dialer) error {
	ctx, cancel := context.WithTimeout(ctx, hostProbeTimeout)
	defer cancel()

	conn, err := d.Dial(ctx)
	if err != nil {
		return nil
	}
	_ = conn.Close()
	return fmt.Errorf("execution host is running (%s): stop it before importing a backup", d.Transport())
}

func restore(ctx context.Context, codec backup.Codec, record *state.Record, inPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	password, err := readPassword("Backup password: ")
	if err != nil {
		return err
	}
	if err := codec.Import(ctx, record, password, string(bytes.TrimSpace(data))); err != nil {
		return err
	}
	logger.Info(ctx, "backup imported", "path", inPath)
	return nil
}

// readPassword reads one line from the terminal without echo.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal: run backup interactively to enter the password")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(string(raw), "\r\n")
	clear(raw)
	return password, nil
}
