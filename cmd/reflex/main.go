package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	rerrors "github.com/vango-dev/reflex/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┬─┐┌─┐┌─┐┬  ┌─┐─┐ ┬
  ├┬┘├┤ ├┤ │  ├┤ ┌┴┬┘
  ┴└─└─┘└  ┴─┘└─┘┴ └─
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "reflex",
		Short: "Server-side reflexes for server-rendered pages",
		Long: `Reflex runs server-side actions invoked from a page over a websocket
cable and sends back targeted DOM updates.

  • Actions run on the server against session state
  • Pages are re-rendered and reconciled per selector
  • Updates are broadcast to every connection of a stream
  • Sessions in memory, Redis, PostgreSQL, SQLite or S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		benchCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var re *rerrors.ReflexError
		if errors.As(err, &re) {
			fmt.Fprintln(os.Stderr, re.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
