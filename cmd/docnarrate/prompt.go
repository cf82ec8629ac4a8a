package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/mattn/go-shellwords"

	"github.com/dgallion1/docnarrate/internal/config"
)

// prompt lists the options, reads one line and applies it to cfg. Values
// may be quoted, e.g. RestartCommand="docker restart kokoro".
func prompt(in io.Reader, out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "|---------------------------------------------|")
	fmt.Fprintln(out, "Separate options with spaces")
	fmt.Fprintln(out, "Options:")
	for _, k := range config.ArgKeys {
		fmt.Fprintf(out, "%s=%s\n", k.Key, k.Usage)
	}
	fmt.Fprintln(out, "|---------------------------------------------|")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read options: %w", err)
	}
	args, err := shellwords.Parse(line)
	if err != nil {
		return fmt.Errorf("parse options: %w", err)
	}
	return cfg.ApplyArgs(args)
}
