package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dgallion1/docnarrate/internal/config"
)

func TestPrompt_AppliesLine(t *testing.T) {
	cfg := config.Load()
	var out bytes.Buffer
	in := strings.NewReader(`Voice=am_adam Continue=3,4 RestartCommand="docker restart kokoro"` + "\n")

	if err := prompt(in, &out, &cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Voice != "am_adam" {
		t.Errorf("expected voice am_adam, got %q", cfg.Voice)
	}
	if cfg.ContinueLine != 3 || cfg.ContinueWord != 4 {
		t.Errorf("expected continue 3,4, got %d,%d", cfg.ContinueLine, cfg.ContinueWord)
	}
	if cfg.RestartCommand != "docker restart kokoro" {
		t.Errorf("expected quoted command kept whole, got %q", cfg.RestartCommand)
	}
	if !strings.Contains(out.String(), "StartFromChunk=") {
		t.Error("expected option list to be printed")
	}
}

func TestPrompt_EmptyLineKeepsConfig(t *testing.T) {
	cfg := config.Load()
	before := cfg.Voice
	if err := prompt(strings.NewReader(""), &bytes.Buffer{}, &cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Voice != before {
		t.Errorf("expected voice unchanged, got %q", cfg.Voice)
	}
}

func TestPrompt_BadOption(t *testing.T) {
	cfg := config.Load()
	if err := prompt(strings.NewReader("Speed=fast\n"), &bytes.Buffer{}, &cfg); err == nil {
		t.Error("expected error")
	}
}

func TestNewRootCmd_FlagsOverlayConfig(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.PersistentFlags().Parse([]string{"--voice", "bf_emma", "--max-chars", "900"}); err != nil {
		t.Fatal(err)
	}
	if v, _ := cmd.PersistentFlags().GetString("voice"); v != "bf_emma" {
		t.Errorf("expected bf_emma, got %q", v)
	}
	if n, _ := cmd.PersistentFlags().GetInt("max-chars"); n != 900 {
		t.Errorf("expected 900, got %d", n)
	}
	if cmd.Commands()[0].Name() != "serve" {
		t.Errorf("expected serve subcommand, got %q", cmd.Commands()[0].Name())
	}
}
