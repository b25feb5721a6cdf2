package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchinfo/addone/extract"
	"github.com/sshcollectorpro/switchinfo/internal/config"
	"github.com/sshcollectorpro/switchinfo/internal/inventory"
	"github.com/sshcollectorpro/switchinfo/internal/service"
	"github.com/sshcollectorpro/switchinfo/pkg/logger"
)

// errReported 错误信息已输出给用户，main 只需以非零状态退出
var errReported = errors.New("switchinfo: input error")

const usageBanner = `
This program is designed to retrieve the serial number
and license entitlement for Cisco Catalyst switches running
IOS-XE 16.8 and below.

The program accepts two arguments. The name of a CSV file and the number of desired threads.

The CSV should be in the format below:

%s

Usage: switchinfo DeviceDetails.csv X

The 'X' represents the number of threads to execute
`

const invalidThreads = "Invalid entry for number of threads. Please enter an integer."

// negativeArg 匹配 pflag 未知短选项错误中的原始参数
var negativeArg = regexp.MustCompile(`unknown shorthand flag: '.' in (-\S+)`)

type rootOptions struct {
	configPath string
	strategy   string
	output     string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "switchinfo <targetListPath> <concurrency>",
		Short: "Collect serial number and license entitlement from Cisco Catalyst switches",
		Long:  `switchinfo 通过 SSH 并发登录清单中的交换机，提取产品型号、序列号与授权级别并写入 CSV。`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				fmt.Fprintf(stdout, usageBanner, inventory.ExampleFormat)
				return errReported
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), stdout, args[0], args[1], opts)
		},
	}
	cmd.SetOut(stdout)
	// 负数并发（如 -2）会被 pflag 当作短选项，按并发数无效处理
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		if m := negativeArg.FindStringSubmatch(err.Error()); m != nil {
			if _, convErr := strconv.Atoi(m[1]); convErr == nil {
				fmt.Fprintln(stdout, invalidThreads)
				return errReported
			}
		}
		return err
	})
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: configs/config.yaml when present)")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "extraction strategy: "+strings.Join(extract.Names(), " | "))
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output CSV path (default: collector.output_path)")
	return cmd
}

func run(ctx context.Context, stdout io.Writer, targetList, concurrencyArg string, opts *rootOptions) error {
	start := time.Now()

	// 参数校验先于一切文件与网络操作
	concurrency, err := strconv.Atoi(strings.TrimSpace(concurrencyArg))
	if err != nil || concurrency <= 0 {
		fmt.Fprintln(stdout, invalidThreads)
		return errReported
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	collector, cleanup, err := service.NewCollectorFromConfig(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := collector.Run(ctx, service.RunOptions{
		TargetList:  targetList,
		Concurrency: concurrency,
		Strategy:    opts.strategy,
		OutputPath:  opts.output,
	})
	var he *inventory.HeaderError
	if errors.As(err, &he) {
		fmt.Fprintf(stdout, "\nInvalid header in CSV file. Please modify to the format below: \n%s\n", inventory.ExampleFormat)
		return errReported
	}
	if err != nil && report == nil {
		return err
	}

	fmt.Fprintf(stdout, "\nReview collected information in %s\n", report.OutputPath)
	fmt.Fprintf(stdout, "\nElapsed time: %s\n", time.Since(start).Round(time.Millisecond))
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
