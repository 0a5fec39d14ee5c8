package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/naveenspark/mylibrary/internal/browser"
	"github.com/naveenspark/mylibrary/internal/release"
)

var checkLatest bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitWith(runVersion(cmd.Context(), os.Stdout, release.NewChecker(), checkLatest))
	},
}

var portalCmd = &cobra.Command{
	Use:   "portal [page]",
	Short: "Open the web portal in a browser",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stdout, "Error: %v\n", err)
			exitWith(exitUsage)
			return
		}
		page := ""
		if len(args) == 1 {
			page = args[0]
		}
		exitWith(runPortal(os.Stdout, browser.Open, cfg.APIURL, page))
	},
}

func init() {
	versionCmd.Flags().BoolVar(&checkLatest, "check", false, "Check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd, portalCmd)
}

func runVersion(ctx context.Context, w io.Writer, r *release.Checker, check bool) int {
	fmt.Fprintln(w, "mylibrary "+version)
	if !check {
		return exitOK
	}
	if version == "dev" || version == "" {
		fmt.Fprintln(w, "dev build, install a release to check for updates")
		return exitOK
	}
	latest, newer, err := r.Check(ctx, version)
	if err != nil {
		fmt.Fprintf(w, "Error: check for updates: %v\n", err)
		return exitError
	}
	if newer {
		fmt.Fprintf(w, "v%s is available\n", latest)
	} else {
		fmt.Fprintln(w, "up to date")
	}
	return exitOK
}

func runPortal(w io.Writer, open func(string) error, base, page string) int {
	u := browser.PortalURL(base, page)
	if err := open(u); err != nil {
		fmt.Fprintf(w, "Could not open browser. Visit this URL manually:\n  %s\n", u)
	}
	return exitOK
}
