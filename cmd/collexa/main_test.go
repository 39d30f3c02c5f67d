package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/collexa/console/internal/api"
)

func TestTeamSourcePrecedence(t *testing.T) {
	base := api.StaticSource{AccessToken: "tok", TeamID: "stored"}

	tests := []struct {
		name     string
		source   api.SessionSource
		override string
		fallback string
		want     string
	}{
		{"flag beats stored", base, "flag", "", "flag"},
		{"stored beats config", base, "", "cfg", "stored"},
		{"config fills empty", api.StaticSource{AccessToken: "tok"}, "", "cfg", "cfg"},
		{"nothing set", api.StaticSource{AccessToken: "tok"}, "", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := teamSource{base: tc.source, override: tc.override, fallback: tc.fallback}
			sess, err := src.Session(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if sess.TeamID != tc.want {
				t.Errorf("team = %q, want %q", sess.TeamID, tc.want)
			}
		})
	}
}

func TestRunDuration(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	end := start.Add(42 * time.Second)

	done := api.Run{Status: api.RunSucceeded, StartedAt: start, EndedAt: &end}
	if got := runDuration(done); got != "42s" {
		t.Errorf("finished run = %q, want 42s", got)
	}

	// Terminal but missing its end timestamp: nothing sensible to show.
	broken := api.Run{Status: api.RunFailed, StartedAt: start}
	if got := runDuration(broken); got != "-" {
		t.Errorf("no end time = %q, want -", got)
	}

	live := api.Run{Status: api.RunRunning, StartedAt: start}
	if got := runDuration(live); got == "-" || got == "" {
		t.Errorf("live run = %q, want elapsed time", got)
	}
}

func TestLimitFormatting(t *testing.T) {
	if got := limit(0); got != "unlimited" {
		t.Errorf("limit(0) = %q", got)
	}
	if got := limit(-1); got != "unlimited" {
		t.Errorf("limit(-1) = %q", got)
	}
	if got := limit(1000); got != "1000" {
		t.Errorf("limit(1000) = %q", got)
	}
}

func TestInviteRejectsBadRole(t *testing.T) {
	prev := inviteRole
	defer func() { inviteRole = prev }()

	inviteRole = "owner"
	if err := teamInviteCmd.RunE(teamInviteCmd, []string{"new@acme.dev"}); err == nil {
		t.Error("owner invite should be rejected before any request")
	}
}

func TestLoadConfigHonorsEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api:\n  base_url: http://127.0.0.1:9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COLLEXA_CONFIG", path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
}

func TestVersionCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
}
