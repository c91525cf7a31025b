package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/roost/internal/bot"
	"github.com/kestrelworks/roost/internal/command"
	"github.com/kestrelworks/roost/internal/config"
	"github.com/kestrelworks/roost/internal/logging"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot session and an interactive control shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			// The flag wins over the config file for log level.
			if logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			config.Normalize(&cfg, log)

			reg := command.NewRegistry(log)
			session := bot.New(cfg, log,
				bot.WithCommands(reg),
				bot.WithHooks(bot.Hooks{
					OnStart: func() { log.Info().Msg("bot is up") },
				}),
			)
			registerBuiltins(reg, session)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := session.Run(ctx); err != nil {
				return err
			}
			defer session.Close()

			go shell(ctx, stop, session)

			<-ctx.Done()
			log.Info().Msg("shutting down")
			return nil
		},
	}
}

// registerBuiltins adds the stock commands every roost deployment carries.
func registerBuiltins(reg *command.Registry, s *bot.Session) {
	reg.Register("ping", func(ctx command.Context, _ string) error {
		return ctx.Reply("pong")
	})
	reg.Register("uptime", func(ctx command.Context, _ string) error {
		return ctx.Reply(fmt.Sprintf("up %s", s.Uptime().Round(time.Second)))
	})
	reg.Register("commands", func(ctx command.Context, _ string) error {
		return ctx.Reply("code:" + strings.Join(reg.Names(), " "))
	})
}

// shell reads operator commands from stdin until quit or signal. Errors are
// printed, never fatal; the session keeps running behind the shell.
func shell(ctx context.Context, stop func(), s *bot.Session) {
	fmt.Println("commands: status | servers | join <id> | leave <id> | set <key> <value> | send <id|all> <text> | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, rest := fields[0], strings.Join(fields[1:], " ")

		switch cmd {
		case "quit", "exit":
			stop()
			return

		case "status":
			for _, st := range s.Status() {
				state := "disconnected"
				if st.Connected {
					state = "connected"
				}
				fmt.Printf("%-24s %-24s %s\n", st.ID, st.Name, state)
			}

		case "servers":
			for _, srv := range s.Servers() {
				fmt.Printf("%-24s %s\n", srv.ID, srv.Name)
			}

		case "join":
			if rest == "" {
				fmt.Println("usage: join <server-id>")
				continue
			}
			if err := s.Join(ctx, rest); err != nil {
				fmt.Println("join:", err)
			}

		case "leave":
			if rest == "" {
				fmt.Println("usage: leave <server-id>")
				continue
			}
			if err := s.Leave(rest); err != nil {
				fmt.Println("leave:", err)
			}

		case "set":
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: set <key> <value>")
				continue
			}
			if err := s.SetSetting(ctx, parts[0], parts[1]); err != nil {
				fmt.Println("set:", err)
			}

		case "send":
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: send <server-id|all> <text>")
				continue
			}
			if parts[0] == "all" {
				for id, err := range s.Broadcast(parts[1]) {
					fmt.Printf("send %s: %v\n", id, err)
				}
				continue
			}
			if err := s.Send(parts[1], parts[0]); err != nil {
				fmt.Println("send:", err)
			}

		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}
