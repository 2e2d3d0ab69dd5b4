package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rookit/internal/bootstrap"
	"rookit/internal/config"
	"rookit/internal/contextproxy"
	"rookit/internal/repl"
	"rookit/internal/settings"
	"rookit/internal/storage"
	"rookit/internal/tui"
	"rookit/internal/webview"
)

type globalFlags struct {
	configPath string
	workspace  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "rookit",
		Short:         "rookit - terminal front end for the coding assistant task stack",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return runREPL(cmd, flags)
			}
			// 全屏界面下宿主提示只进日志 / host notices go to the log only under the full-screen UI
			return withSessionOutput(cmd, flags, io.Discard, func(ctx context.Context, res *bootstrap.Result, _ config.Config) error {
				return tui.Run(ctx, res.Controller, res.WorkspaceRoot, res.I18n)
			})
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config JSON/JSONC")
	rootCmd.PersistentFlags().StringVar(&flags.workspace, "cwd", "", "Workspace root override")

	rootCmd.AddCommand(replCmd(flags))
	rootCmd.AddCommand(stateCmd(flags))
	rootCmd.AddCommand(configCmd(flags))
	rootCmd.AddCommand(initCmd(flags))
	rootCmd.AddCommand(importStateCmd(flags))
	return rootCmd
}

type sessionFunc func(ctx context.Context, res *bootstrap.Result, cfg config.Config) error

// withSession 加载配置并构建控制器，fn 返回后释放资源
// withSession loads config, builds the controller and releases it after fn returns
func withSession(cmd *cobra.Command, flags *globalFlags, fn sessionFunc) error {
	return withSessionOutput(cmd, flags, cmd.ErrOrStderr(), fn)
}

// withSessionOutput is withSession with host notices written to hostOut.
func withSessionOutput(cmd *cobra.Command, flags *globalFlags, hostOut io.Writer, fn sessionFunc) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.Build(ctx, cfg, bootstrap.Options{
		Workspace: flags.workspace,
		Version:   Version,
		Stderr:    hostOut,
	})
	if err != nil {
		return err
	}
	defer res.Close()
	return fn(ctx, res, cfg)
}

func runREPL(cmd *cobra.Command, flags *globalFlags) error {
	return withSession(cmd, flags, func(ctx context.Context, res *bootstrap.Result, cfg config.Config) error {
		tty := isTerminal(os.Stdin) && cmd.InOrStdin() == os.Stdin
		l, err := repl.New(res.Controller, repl.Options{
			HistoryPath: filepath.Join(cfg.Storage.BaseDir, "history"),
			TTY:         tty,
			Fd:          int(os.Stdin.Fd()),
			In:          cmd.InOrStdin(),
			Out:         cmd.OutOrStdout(),
			I18n:        res.I18n,
			Logger:      res.Logger,
		})
		if err != nil {
			return err
		}
		return l.Run(ctx)
	})
}

func replCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Run a line-oriented session instead of the full-screen UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, flags)
		},
	}
}

func stateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current state snapshot as JSON (secrets excluded)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, res *bootstrap.Result, _ config.Config) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res.Controller.GetState(ctx))
			})
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configuration profiles and mode bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, res *bootstrap.Result, _ config.Config) error {
				st := res.Controller.GetState(ctx)
				current, _ := st[contextproxy.KeyCurrentAPIConfigName].(string)
				list, _ := st[webview.StateListAPIConfigMeta].([]settings.ConfigMeta)
				bindings, _ := st[webview.StateModeAPIConfigs].(map[string]string)
				out := cmd.OutOrStdout()
				for _, m := range list {
					marker := " "
					if m.Name == current {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s\t%s\t%s\n", marker, m.Name, m.APIProvider, m.ID)
				}
				modeNames := make([]string, 0, len(bindings))
				for mode := range bindings {
					modeNames = append(modeNames, mode)
				}
				sort.Strings(modeNames)
				for _, mode := range modeNames {
					fmt.Fprintf(out, "  mode %s -> %s\n", mode, bindings[mode])
				}
				return nil
			})
		},
	})
	return cmd
}

func initCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a project config scaffold at .rookit/config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.InitProjectConfigScaffold(flags.workspace)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "exists %s\n", path)
			}
			return nil
		},
	}
}

func importStateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import-state [file]",
		Short: "Import an exported global-state JSON object; existing keys are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, res *bootstrap.Result, _ config.Config) error {
				n, err := storage.ImportStateFile(ctx, args[0], res.Backend)
				if err != nil {
					return err
				}
				if err := res.Controller.Sync(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d keys\n", n)
				return nil
			})
		},
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
