// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/mockstreet/paperbroker/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes config.yaml.
func RunTUI() error {
	listenAddr := config.DefaultListenAddr
	dataDir := config.DefaultDataDir
	balanceStr := config.DefaultStartingBalance
	quoteMode := "live"
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PAPERBROKER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Set up your paper-trading broker.\n"))

	fmt.Println(stepStyle.Render("STEP 1: SERVER"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Description("Address the API server binds to (e.g. :8080)").
				Value(&listenAddr),
			huh.NewInput().
				Title("Data directory").
				Description("Where account snapshots and the transaction log live").
				Value(&dataDir),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PAPERBROKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: ACCOUNTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Starting balance").
				Description("Cash every new account begins with").
				Validate(func(s string) error {
					balance, err := decimal.NewFromString(s)
					if err != nil {
						return fmt.Errorf("must be a decimal number")
					}
					if balance.IsNegative() {
						return fmt.Errorf("must not be negative")
					}
					return nil
				}).
				Value(&balanceStr),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PAPERBROKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: QUOTES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Quote source").
				Options(
					huh.NewOption("Live (Yahoo Finance, fallback table on failure)", "live"),
					huh.NewOption("Offline (static fallback table only)", "offline"),
				).
				Value(&quoteMode),
		),
	).Run()
	if err != nil {
		return err
	}

	liveQuotes := quoteMode == "live"
	file := config.File{
		ListenAddr:      listenAddr,
		DataDir:         dataDir,
		StartingBalance: balanceStr,
		LiveQuotes:      &liveQuotes,
		QuoteCacheTTL:   time.Minute,
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PAPERBROKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: CONFIRM"))
	fmt.Printf("\n  listen_addr:      %s\n  data_dir:         %s\n  starting_balance: %s\n  live_quotes:      %v\n\n",
		file.ListenAddr, file.DataDir, file.StartingBalance, liveQuotes)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config.yaml?").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Aborted, nothing written."))
		return nil
	}

	if err := config.WriteFile("config.yaml", file); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render("config.yaml written. Start the broker with: paperbroker --config config.yaml"))
	return nil
}
