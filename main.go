package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	demoPort    int
	demoVersion string
	dryRun      bool
}

// exitError 让子命令把退出码交回 main，错误信息已由子命令自行输出。
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute 构建命令树并执行，返回进程退出码，方便测试。
func execute(ctx context.Context, args []string) int {
	root := buildRoot()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)
	if err := root.ExecuteContext(ctx); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(stdErr, err.Error())
		return 2
	}
	return 0
}

func buildRoot() *cobra.Command {
	opts := &cliOptions{}
	var configFlag string

	root := &cobra.Command{
		Use:           "pwa-edge",
		Short:         "Cache lifecycle controller for the member portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.configPath = resolveConfigPath(configFlag)
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PWA_EDGE_CONFIG 覆盖）")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Install the controller and serve portal traffic",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return exitWith(runServe(cmd.Context(), *opts))
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the configuration and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return exitWith(runCheckConfig(*opts))
			},
		},
		createVersionCommand(),
		createDemoOriginCommand(opts),
		createPurgeCommand(opts),
	)
	return root
}

func createVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "附带构建时间与运行时信息")
	return cmd
}

func createDemoOriginCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo-origin",
		Short: "Serve the demo member portal as an origin server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitWith(runDemoOrigin(cmd.Context(), *opts))
		},
	}
	cmd.Flags().IntVar(&opts.demoPort, "port", 3000, "监听端口")
	cmd.Flags().StringVar(&opts.demoVersion, "release", "", "发布版本号，/api/version 返回 ambetter-v<release>")
	return cmd
}

func createPurgeCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cache store except the configured version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitWith(runPurge(cmd.Context(), *opts))
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "只列出将被删除的 store")
	return cmd
}

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return exitError{code: code}
}

// resolveConfigPath 结合 flag 与环境变量计算最终的配置路径，flag 优先。
func resolveConfigPath(flagValue string) string {
	path := os.Getenv("PWA_EDGE_CONFIG")
	if flagValue != "" {
		path = flagValue
	}
	if path == "" {
		path = "config.toml"
	}
	return path
}
