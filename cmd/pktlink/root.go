package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/pktlink/internal/app"
	"github.com/1ureka/pktlink/internal/config"
	"github.com/1ureka/pktlink/internal/util"
)

// flags holds the command-line overrides. A flag only replaces the config
// value when it was set explicitly.
type flags struct {
	configPath string
	transport  string
	addr       string
	framing    string
	debug      bool

	mode          string
	metricsAddr   string
	statsInterval time.Duration
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&flags{})
}

func buildRootCmd(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:   "pktlink",
		Short: "Framed packet link over TCP, WebSocket or WebRTC",
		Long: `pktlink exchanges JSON-enveloped packets between a server and its clients.
Run "pktlink serve" to accept connections, "pktlink dial" to connect, or
pktlink without a subcommand to be prompted for both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (.toml, .yaml or .yml)")
	pf.StringVar(&f.transport, "transport", "", "transport: tcp, ws or webrtc (default \"tcp\")")
	pf.StringVar(&f.addr, "addr", "", "listen address (serve) or server address (dial)")
	pf.StringVar(&f.framing, "framing", "", "framing: read or length (default \"read\")")
	pf.BoolVar(&f.debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd(f), newDialCmd(f), newVersionCmd())
	return root
}

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and relay packets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd, f, config.RoleServer)
			if err != nil {
				return err
			}
			banner()
			return app.RunServer(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.mode, "mode", "", "relay mode: echo, broadcast or log (default \"echo\")")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().DurationVar(&f.statsInterval, "stats-interval", 0, "log traffic statistics at this interval")
	return cmd
}

func newDialCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "dial",
		Short: "Connect to a server, send stdin lines and print replies",
		Long: `Connect to a pktlink server. Each stdin line is sent as a Message packet.
"/raw <text>" sends text without an envelope and "/quit" disconnects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(cmd, f, config.RoleClient)
			if err != nil {
				return err
			}
			banner()
			return app.RunClient(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the pktlink version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pktlink version %s\n", version)
			return nil
		},
	}
}

// resolve builds the effective configuration: defaults, then the config
// file, then explicitly set flags.
func resolve(cmd *cobra.Command, f *flags, role config.Role) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg.Role = role

	changed := cmd.Flags().Changed
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("addr") {
		cfg.Address = f.addr
	}
	if changed("framing") {
		cfg.Framing = f.framing
	}
	if changed("debug") {
		cfg.Debug = f.debug
	}
	if changed("mode") {
		cfg.Mode = config.Mode(f.mode)
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("stats-interval") {
		cfg.StatsInterval = f.statsInterval
	}

	if cfg.Debug {
		util.EnableDebug()
	}
	return cfg, cfg.Validate()
}

func banner() {
	pterm.Info.Println(fmt.Sprintf("pktlink v%s", version))
	pterm.Println()
}
