// greetui is a minimal TUI greeter for greetd: it collects a username,
// password and session choice, negotiates authentication with the daemon and
// exits once the daemon takes over with the chosen session.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"greetui/internal/config"
	"greetui/internal/eventlog"
	"greetui/internal/greetd"
	"greetui/internal/tui"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "path to the config document")
		statePath  = flag.String("state", config.DefaultStatePath, "path to the last-user state file")
		debugExit  = flag.Bool("debug-exit", false, "allow ctrl+c to cancel and exit (debugging only)")
		checkOnly  = flag.Bool("check", false, "validate the config and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "greetui: %v\n", err)
		os.Exit(tui.ExitConfig)
	}
	if *checkOnly {
		fmt.Printf("greetui: %s ok (%d sessions)\n", *configPath, len(cfg.Sessions))
		return
	}

	env, err := sessionEnv(cfg.EnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "greetui: %v\n", err)
		os.Exit(tui.ExitConfig)
	}

	store := config.NewStore(*statePath)
	log := eventlog.New(cfg.LogFile)
	log.Append("main", "started", map[string]any{"config": *configPath}, "")

	m := tui.New(cfg, tui.Options{
		Store:      store,
		Log:        log,
		Transport:  greetd.NewChannel(),
		DebugExit:  *debugExit,
		SessionEnv: env,
		Autofill:   store.Autofill(cfg),
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(tui.ExitFatal)
	}
	if fm, ok := finalModel.(tui.Model); ok {
		log.Append("main", "exited", map[string]any{"code": fm.ExitCode()}, "")
		os.Exit(fm.ExitCode())
	}
}

// sessionEnv reads the optional dotenv file whose entries are handed to the
// daemon verbatim as the session environment.
func sessionEnv(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env, nil
}
