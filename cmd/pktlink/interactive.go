package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/pktlink/internal/app"
	"github.com/1ureka/pktlink/internal/config"
	"github.com/1ureka/pktlink/internal/transport"
	"github.com/1ureka/pktlink/internal/util"
)

// runInteractive prompts for the role, transport and address when no
// subcommand is given. Flags and the config file still provide the rest.
func runInteractive(cmd *cobra.Command, f *flags) error {
	banner()

	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Server  - accept connections and echo packets", "Client  - connect and send lines"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	role := config.RoleServer
	if strings.HasPrefix(choice, "Client") {
		role = config.RoleClient
	}

	cfg, err := resolve(cmd, f, role)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("transport") {
		cfg.Transport, _ = pterm.DefaultInteractiveSelect.
			WithOptions([]string{transport.NetworkTCP, transport.NetworkWebSocket, transport.NetworkWebRTC}).
			WithDefaultText("Transport").
			Show()
		pterm.Println()
	}
	if !cmd.Flags().Changed("addr") {
		cfg.Address = askAddress(role, cfg.Address)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if role == config.RoleClient {
		util.LogInfo("type a line to send it, /raw <text> to send unframed text, /quit to leave")
		return app.RunClient(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return app.RunServer(cmd.Context(), cfg, cmd.OutOrStdout())
}

// askAddress prompts until a non-empty address is entered. An empty answer
// keeps def.
func askAddress(role config.Role, def string) string {
	prompt := fmt.Sprintf("Address to listen on (default %s)", def)
	if role == config.RoleClient {
		prompt = fmt.Sprintf("Server address (default %s)", def)
	}

	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
		pterm.Println()

		addr := strings.TrimSpace(raw)
		if addr == "" {
			addr = def
		}
		if addr != "" {
			return addr
		}
		util.LogWarning("an address is required")
	}
}
