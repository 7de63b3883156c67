package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errPasswordMismatch = errors.New("passwords do not match")

// passwordReader reads the encryption password without echo from a terminal,
// or one line at a time when stdin is piped.
type passwordReader struct {
	in    io.Reader
	out   io.Writer
	fd    int
	tty   bool
	lines *bufio.Reader
}

func newPasswordReader(cmd *cobra.Command) *passwordReader {
	pr := &passwordReader{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
	if f, ok := pr.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pr.fd = int(f.Fd())
		pr.tty = true
	}
	return pr
}

// Read prompts for a password. With confirm set, a terminal user must type it
// twice.
func (pr *passwordReader) Read(prompt string, confirm bool) (string, error) {
	password, err := pr.readOne(prompt)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("empty password")
	}

	if confirm && pr.tty {
		again, err := pr.readOne("Confirm password: ")
		if err != nil {
			return "", err
		}
		if again != password {
			return "", errPasswordMismatch
		}
	}

	return password, nil
}

func (pr *passwordReader) readOne(prompt string) (string, error) {
	if pr.tty {
		fmt.Fprint(pr.out, prompt)
		b, err := term.ReadPassword(pr.fd)
		fmt.Fprintln(pr.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	if pr.lines == nil {
		pr.lines = bufio.NewReader(pr.in)
	}
	line, err := pr.lines.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
