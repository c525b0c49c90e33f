package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/labflow"
	"github.com/aretw0/labflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the lab as an MCP Server so AI agents can list, perform and audit
transitions as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		// Ensure logs don't corrupt JSON-RPC on Stdout
		log.SetOutput(os.Stderr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening lab: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = s.close() }()

		srv := mcp.NewServer(s.engine, s.lab,
			mcp.WithRunner(s.runner),
			mcp.WithAudit(s.audit),
			mcp.WithLogger(s.logger),
			mcp.WithVersion(labflow.Version),
		)

		switch transport {
		case "stdio":
			s.logger.Info("Starting labflow MCP Server (Stdio)...")
			if err := srv.ServeStdio(); err != nil {
				s.logger.Error("MCP Server execution failed", "err", err)
				_ = s.close()
				os.Exit(1)
			}
		case "sse":
			if err := srv.ServeSSE(ctx, addr); err != nil {
				s.logger.Error("MCP Server execution failed", "err", err)
				_ = s.close()
				os.Exit(1)
			}
			s.logger.Info("MCP Server stopped gracefully")
		default:
			fmt.Fprintf(os.Stderr, "Unknown transport: %s. Supported: stdio, sse\n", transport)
			_ = s.close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport type (stdio, sse)")
	mcpCmd.Flags().String("addr", "localhost:8080", "Listen address for the SSE transport")
}
