package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doITmagic/laravel-callctx/internal/healthcheck"
	"github.com/doITmagic/laravel-callctx/internal/lsp"
	"github.com/doITmagic/laravel-callctx/internal/mcpserver"
)

func newParseCmd(flags *rootFlags) *cobra.Command {
	var offset int

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Print the call context at the cursor as JSON",
		Long: `Parse reads PHP source from a file, or stdin when the argument is "-" or
missing, and prints the call context enclosing the cursor. The cursor is the
end of the input unless --offset gives a byte offset.`,
		Example: `  callctx parse app/Http/Controllers/HomeController.php --offset 512
  printf "<?php config('app." | callctx parse -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var src []byte
			if len(args) == 0 || args[0] == "-" {
				src, err = io.ReadAll(cmd.InOrStdin())
			} else {
				src, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}

			if cmd.Flags().Changed("offset") {
				if offset < 0 || offset > len(src) {
					return fmt.Errorf("offset %d outside source of %d bytes", offset, len(src))
				}
				src = src[:offset]
			}

			p, err := a.parser()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(p.Parse(string(src)), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Byte offset of the cursor (default: end of input)")
	return cmd
}

func newLSPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Run the language server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.resolver()
			if err != nil {
				return err
			}
			defer res.Close()
			projects, err := a.projects()
			if err != nil {
				return err
			}
			defer func() {
				projects.Close()
				a.saveSnapshots(projects)
			}()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			srv := lsp.NewServer(a.cfg, res, projects, a.logger)
			err = srv.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.resolver()
			if err != nil {
				return err
			}
			defer res.Close()
			projects, err := a.projects()
			if err != nil {
				return err
			}
			defer func() {
				projects.Close()
				a.saveSnapshots(projects)
			}()

			// Use a context that cancels on OS signals for graceful shutdown.
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := mcpserver.New(a.cfg, res, projects, a.logger).Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("server terminated: %w", err)
			}
			return nil
		},
	}
}

func newIndexCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index <project>",
		Short: "Load every fact of a project and save the snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.projects()
			if err != nil {
				return err
			}
			defer projects.Close()

			start := time.Now()
			p, err := projects.LoadAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.saveSnapshots(projects)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %s in %s\n", p.Info.Root, time.Since(start).Round(time.Millisecond))
			counts := p.Registry.Counts()
			domains := make([]string, 0, len(counts))
			for d := range counts {
				domains = append(domains, d)
			}
			sort.Strings(domains)
			for _, d := range domains {
				fmt.Fprintf(out, "  %-13s %d\n", d, counts[d])
			}
			return nil
		},
	}
}

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check the parser, the project and the snapshot store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			if path, err = filepath.Abs(path); err != nil {
				return err
			}

			results := healthcheck.CheckAll(cmd.Context(), a.cfg, path)
			fmt.Fprint(cmd.OutOrStdout(), healthcheck.FormatResults(results))
			if !healthcheck.Healthy(results) {
				fmt.Fprintln(cmd.OutOrStdout(), healthcheck.GetRemediation(results))
				return errors.New("health check failed")
			}
			return nil
		},
	}
}
