// ABOUTME: Entry point for coven-bot
// ABOUTME: Dispatches the serve, console and init subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-bot/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                   _           _
  ___ _____   _____ _ __          | |__   ___ | |_
 / __/ _ \ \ / / _ \ '_ \  _____  | '_ \ / _ \| __|
| (_| (_) \ V /  __/ | | ||_____| | |_) | (_) | |_
 \___\___/ \_/ \___|_| |_|        |_.__/ \___/ \__|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-bot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve            Run the bot on the configured channels")
		fmt.Println("  console          Chat with the bot in this terminal")
		fmt.Println("  init [--force]   Write a starter config file")
		os.Exit(1)
	}

	// A missing .env is fine; an unreadable one is worth a warning.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "console":
		err = runConsole(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}

func runInit(args []string) error {
	force := len(args) > 0 && (args[0] == "--force" || args[0] == "-f")
	configPath := config.DefaultPath()

	if err := config.WriteStarter(configPath, force); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("  Enable a channel under channels: and run 'coven-bot serve',")
	fmt.Println("  or try the bot right away with 'coven-bot console'.")
	return nil
}
