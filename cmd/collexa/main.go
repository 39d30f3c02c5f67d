package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collexa/console/internal/api"
	"github.com/collexa/console/internal/app"
	"github.com/collexa/console/internal/config"
	"github.com/collexa/console/internal/credentials"
	"github.com/collexa/console/internal/events"
)

// Set via -ldflags at release time.
var version = "dev"

var (
	configPath string
	tokenFlag  string
	teamFlag   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "collexa",
	Short: "Terminal console for the Collexa agent platform",
	Long:  "Collexa is a terminal console for the Collexa platform: a live dashboard plus subcommands for agents, runs, team, billing, and API keys.",
	RunE:  runDash,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/collexa/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token, overriding stored credentials")
	rootCmd.PersistentFlags().StringVar(&teamFlag, "team", "", "team id for this invocation")

	rootCmd.AddCommand(dashCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(teamCmd)
	rootCmd.AddCommand(billingCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Session assembly ---

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("COLLEXA_CONFIG")
	}
	if path == "" {
		path = config.DefaultPath()
	}
	return config.LoadOrDefault(path)
}

// buildSource picks the credential source for this invocation: an
// explicit --token (or COLLEXA_TOKEN) wins over the credentials file.
// The chosen team rides inside the session so the HTTP client and the
// event feed resolve it the same way.
func buildSource(cfg *config.Config) api.SessionSource {
	token := tokenFlag
	if token == "" {
		token = os.Getenv("COLLEXA_TOKEN")
	}
	var base api.SessionSource
	if token != "" {
		base = api.StaticSource{AccessToken: token}
	} else {
		base = credentials.NewStore(credentials.DefaultPath())
	}
	if teamFlag == "" && cfg.Team == "" {
		return base
	}
	return teamSource{base: base, override: teamFlag, fallback: cfg.Team}
}

// teamSource layers team selection over a credential source without
// touching the credentials file. The --team flag beats the stored
// team; the config file's team only fills in when nothing is stored.
type teamSource struct {
	base     api.SessionSource
	override string
	fallback string
}

func (t teamSource) Session(ctx context.Context) (api.Session, error) {
	sess, err := t.base.Session(ctx)
	if err != nil {
		return api.Session{}, err
	}
	if t.override != "" {
		sess.TeamID = t.override
	} else if sess.TeamID == "" {
		sess.TeamID = t.fallback
	}
	return sess, nil
}

func apiClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return api.New(cfg.API.BaseURL, buildSource(cfg)), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Root: dashboard ---

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the interactive dashboard",
	RunE:  runDash,
}

func runDash(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Log lines on stderr would tear the alternate screen, so the
	// dashboard only logs when a file is configured.
	logger := zap.NewNop()
	if cfg.Log.File != "" {
		logger, err = cfg.BuildLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	source := buildSource(cfg)
	client := api.New(cfg.API.BaseURL, source, api.WithLogger(logger))
	feed := events.NewClient(cfg.EventsURL(), source, logger)

	p := tea.NewProgram(app.New(client, feed), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// --- Agents ---

var agentsJSON bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List and manage agents",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		list, err := client.ListAgents(ctx)
		if err != nil {
			return err
		}
		if agentsJSON {
			return printJSON(list.Agents)
		}
		if len(list.Agents) == 0 {
			fmt.Println("no agents")
			return nil
		}
		fmt.Printf("%-24s %-22s %-10s %6s  %s\n", "NAME", "MODEL", "STATUS", "RUNS", "ID")
		for _, a := range list.Agents {
			fmt.Printf("%-24s %-22s %-10s %6d  %s\n", a.Name, a.Model, a.Status, a.RunCount, a.ID)
		}
		return nil
	},
}

var (
	createModel            string
	createDescription      string
	createInstructionsFile string
)

var agentsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if !api.KnownModel(createModel) {
			fmt.Fprintf(os.Stderr, "warning: model %q is not in the local catalog; the platform may still accept it\n", createModel)
		}
		req := api.CreateAgentRequest{
			Name:        args[0],
			Model:       createModel,
			Description: createDescription,
		}
		if createInstructionsFile != "" {
			data, err := os.ReadFile(createInstructionsFile)
			if err != nil {
				return err
			}
			req.Instructions = string(data)
		}

		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		agent, err := client.CreateAgent(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%s)\n", agent.Name, agent.ID)
		return nil
	},
}

var agentsShowJSON bool

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent, including its instructions",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		agent, err := client.GetAgent(ctx, args[0])
		if err != nil {
			return err
		}
		if agentsShowJSON {
			return printJSON(agent)
		}
		fmt.Printf("Name:   %s\n", agent.Name)
		fmt.Printf("ID:     %s\n", agent.ID)
		fmt.Printf("Model:  %s\n", agent.Model)
		fmt.Printf("Status: %s\n", agent.Status)
		fmt.Printf("Runs:   %d\n", agent.RunCount)
		if agent.Description != "" {
			fmt.Printf("About:  %s\n", agent.Description)
		}
		if agent.Instructions != "" {
			fmt.Printf("\n%s\n", agent.Instructions)
		}
		return nil
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <agent-id>",
	Short: "Delete an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.DeleteAgent(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "output as JSON")
	agentsCreateCmd.Flags().StringVar(&createModel, "model", api.DefaultModel, "model id")
	agentsCreateCmd.Flags().StringVar(&createDescription, "description", "", "one-line description")
	agentsCreateCmd.Flags().StringVar(&createInstructionsFile, "instructions-file", "", "markdown file with the agent's instructions")
	agentsShowCmd.Flags().BoolVar(&agentsShowJSON, "json", false, "output as JSON")
	agentsCmd.AddCommand(agentsCreateCmd)
	agentsCmd.AddCommand(agentsShowCmd)
	agentsCmd.AddCommand(agentsDeleteCmd)
}

// --- Runs ---

var (
	runsJSON  bool
	runsAgent string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		list, err := client.ListRuns(ctx, runsAgent)
		if err != nil {
			return err
		}
		if runsJSON {
			return printJSON(list.Runs)
		}
		if len(list.Runs) == 0 {
			fmt.Println("no runs")
			return nil
		}
		fmt.Printf("%-10s %-24s %8s %-12s %9s  %s\n", "STATUS", "AGENT", "TOKENS", "STARTED", "DURATION", "ID")
		for _, r := range list.Runs {
			agent := r.AgentName
			if agent == "" {
				agent = r.AgentID
			}
			fmt.Printf("%-10s %-24s %8d %-12s %9s  %s\n",
				r.Status, agent, r.TokensUsed,
				r.StartedAt.Format("Jan 02 15:04"), runDuration(r), r.ID)
		}
		return nil
	},
}

var runsShowJSON bool

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		run, err := client.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if runsShowJSON {
			return printJSON(run)
		}
		fmt.Printf("ID:      %s\n", run.ID)
		fmt.Printf("Agent:   %s\n", run.AgentName)
		fmt.Printf("Status:  %s\n", run.Status)
		fmt.Printf("Trigger: %s\n", run.Trigger)
		fmt.Printf("Tokens:  %d\n", run.TokensUsed)
		fmt.Printf("Started: %s\n", run.StartedAt.Format(time.RFC3339))
		if run.EndedAt != nil {
			fmt.Printf("Ended:   %s\n", run.EndedAt.Format(time.RFC3339))
		}
		if run.Error != "" {
			fmt.Printf("Error:   %s\n", run.Error)
		}
		if len(run.Output) > 0 {
			fmt.Printf("Output:  %s\n", run.Output)
		}
		return nil
	},
}

func runDuration(r api.Run) string {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
	}
	if !r.Status.Terminal() {
		return time.Since(r.StartedAt).Round(time.Second).String()
	}
	return "-"
}

func init() {
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "output as JSON")
	runsCmd.Flags().StringVar(&runsAgent, "agent", "", "filter by agent id")
	runsShowCmd.Flags().BoolVar(&runsShowJSON, "json", false, "output as JSON")
	runsCmd.AddCommand(runsShowCmd)
}

// --- Logs ---

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs <run-id>",
	Short: "Print a run's logs",
	Long:  "Prints the stored logs of a run. With --follow, attaches to the live stream of a run still in flight and prints frames until the run completes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		if !logsFollow {
			return printStoredLogs(client, args[0])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		run, err := client.GetRun(ctx, args[0])
		cancel()
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			// Nothing left to stream.
			return printStoredLogs(client, args[0])
		}
		return followLogs(client, args[0])
	},
}

func printStoredLogs(client *api.Client, runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	entries, err := client.GetRunLogs(ctx, runID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printLogLine(e.TS, e.Level, e.Message)
	}
	return nil
}

func followLogs(client *api.Client, runID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := client.StreamRunLogs(ctx, runID)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if frame.Type == api.FrameComplete {
			fmt.Printf("complete: %s\n", frame.Output)
			return nil
		}
		printLogLine(frame.TS, frame.Level, frame.Message)
	}
}

func printLogLine(ts, level, message string) {
	if level == "" {
		level = "info"
	}
	fmt.Printf("%-23s %-5s %s\n", ts, level, message)
}

func init() {
	logsCmd.Flags().BoolVar(&logsFollow, "follow", false, "stream new log lines until the run completes")
}

// --- Team ---

var teamJSON bool

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Show and manage team members",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		members, err := client.ListMembers(ctx)
		if err != nil {
			return err
		}
		if teamJSON {
			return printJSON(members)
		}
		fmt.Printf("%-32s %-8s %-20s %-10s %s\n", "EMAIL", "ROLE", "NAME", "STATUS", "ID")
		for _, m := range members {
			status := "active"
			if m.Invited {
				status = "invited"
			}
			fmt.Printf("%-32s %-8s %-20s %-10s %s\n", m.Email, m.Role, m.Name, status, m.ID)
		}
		return nil
	},
}

var inviteRole string

var teamInviteCmd = &cobra.Command{
	Use:   "invite <email>",
	Short: "Invite a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		role := api.MemberRole(inviteRole)
		if role != api.RoleMember && role != api.RoleAdmin {
			return fmt.Errorf("role must be member or admin, got %q", inviteRole)
		}

		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		member, err := client.InviteMember(ctx, args[0], role)
		if err != nil {
			return err
		}
		fmt.Printf("invited %s as %s\n", member.Email, member.Role)
		return nil
	},
}

var teamRemoveCmd = &cobra.Command{
	Use:   "remove <member-id>",
	Short: "Remove a member or revoke an invite",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.RemoveMember(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var teamUseCmd = &cobra.Command{
	Use:   "use <team-id>",
	Short: "Select the team for subsequent commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		store := credentials.NewStore(credentials.DefaultPath())
		creds, err := store.Load()
		if err != nil {
			return err
		}
		if creds.AccessToken == "" {
			return fmt.Errorf("not logged in; run 'collexa login' first")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := api.New(cfg.API.BaseURL, api.StaticSource{AccessToken: creds.AccessToken})
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		user, err := client.Whoami(ctx)
		if err != nil {
			return err
		}
		for _, t := range user.Teams {
			if t.ID == args[0] {
				if err := store.SetTeam(t.ID); err != nil {
					return err
				}
				fmt.Printf("team set to %s (%s)\n", t.Name, t.ID)
				return nil
			}
		}
		return fmt.Errorf("you are not a member of team %s", args[0])
	},
}

func init() {
	teamCmd.Flags().BoolVar(&teamJSON, "json", false, "output as JSON")
	teamInviteCmd.Flags().StringVar(&inviteRole, "role", "member", "member or admin")
	teamCmd.AddCommand(teamInviteCmd)
	teamCmd.AddCommand(teamRemoveCmd)
	teamCmd.AddCommand(teamUseCmd)
}

// --- Billing ---

var billingJSON bool

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Show the subscription and current usage",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		sub, err := client.GetSubscription(ctx)
		if err != nil {
			return err
		}
		usage, err := client.GetUsage(ctx)
		if err != nil {
			return err
		}
		if billingJSON {
			return printJSON(map[string]any{"subscription": sub, "usage": usage})
		}

		fmt.Printf("Plan:   %s (%s), %d seats\n", sub.Plan, sub.Status, sub.Seats)
		if sub.RenewsAt != nil {
			fmt.Printf("Renews: %s\n", sub.RenewsAt.Format("Jan 2, 2006"))
		}
		if sub.TrialEndsAt != nil {
			fmt.Printf("Trial ends: %s\n", sub.TrialEndsAt.Format("Jan 2, 2006"))
		}
		fmt.Printf("Period: %s - %s\n", usage.PeriodStart.Format("Jan 2"), usage.PeriodEnd.Format("Jan 2"))
		fmt.Printf("Runs:   %d / %s\n", usage.Runs, limit(int64(usage.RunsLimit)))
		fmt.Printf("Tokens: %d / %s\n", usage.Tokens, limit(usage.TokensLimit))
		return nil
	},
}

func limit(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

var billingPortalCmd = &cobra.Command{
	Use:   "portal",
	Short: "Mint a billing portal link",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		link, err := client.CreateBillingPortal(ctx)
		if err != nil {
			return err
		}
		fmt.Println(link.URL)
		fmt.Fprintf(os.Stderr, "expires %s\n", link.ExpiresAt.Format(time.Kitchen))
		return nil
	},
}

func init() {
	billingCmd.Flags().BoolVar(&billingJSON, "json", false, "output as JSON")
	billingCmd.AddCommand(billingPortalCmd)
}

// --- Keys ---

var keysJSON bool

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List and manage API keys",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		keys, err := client.ListKeys(ctx)
		if err != nil {
			return err
		}
		if keysJSON {
			return printJSON(keys)
		}
		if len(keys) == 0 {
			fmt.Println("no API keys")
			return nil
		}
		fmt.Printf("%-24s %-14s %-12s %-12s %s\n", "NAME", "PREFIX", "CREATED", "LAST USED", "ID")
		for _, k := range keys {
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = k.LastUsedAt.Format("Jan 02")
			}
			fmt.Printf("%-24s %-14s %-12s %-12s %s\n",
				k.Name, k.Prefix, k.CreatedAt.Format("Jan 02"), lastUsed, k.ID)
		}
		return nil
	},
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		key, err := client.CreateKey(ctx, args[0])
		if err != nil {
			return err
		}
		// The secret is printed alone on stdout so it pipes cleanly.
		fmt.Println(key.Secret)
		fmt.Fprintf(os.Stderr, "created %s (%s); the secret above is shown once and cannot be retrieved again\n", key.Name, key.ID)
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.RevokeKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("revoked %s\n", args[0])
		return nil
	},
}

func init() {
	keysCmd.Flags().BoolVar(&keysJSON, "json", false, "output as JSON")
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)
}

// --- Login / logout / whoami ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token",
	Long:  "Stores a session token minted in the platform web console (Settings > Session tokens). The token is validated against the API before it is saved.",
	RunE: func(_ *cobra.Command, _ []string) error {
		token := tokenFlag
		if token == "" {
			fmt.Print("Session token: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return err
			}
			token = strings.TrimSpace(line)
		}
		if token == "" {
			return fmt.Errorf("no token given")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := api.New(cfg.API.BaseURL, api.StaticSource{AccessToken: token})
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		user, err := client.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}

		creds := credentials.Credentials{AccessToken: token}
		if len(user.Teams) == 1 {
			creds.TeamID = user.Teams[0].ID
		}
		store := credentials.NewStore(credentials.DefaultPath())
		if err := store.Save(creds); err != nil {
			return err
		}

		fmt.Printf("logged in as %s\n", user.Email)
		if len(user.Teams) > 1 {
			fmt.Println("select a team with: collexa team use <team-id>")
			for _, t := range user.Teams {
				fmt.Printf("  %-24s %s\n", t.Name, t.ID)
			}
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored session token",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := credentials.NewStore(credentials.DefaultPath()).Clear(); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	},
}

var whoamiJSON bool

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated identity and teams",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		source := buildSource(cfg)
		client := api.New(cfg.API.BaseURL, source)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		user, err := client.Whoami(ctx)
		if err != nil {
			return err
		}
		if whoamiJSON {
			return printJSON(user)
		}

		sess, _ := source.Session(ctx)
		fmt.Printf("%s (%s)\n", user.Name, user.Email)
		for _, t := range user.Teams {
			marker := " "
			if t.ID == sess.TeamID {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-8s %s\n", marker, t.Name, t.Role, t.ID)
		}
		return nil
	},
}

func init() {
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "output as JSON")
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("collexa %s\n", version)
	},
}
