package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchinfo/pkg/logger"
	"github.com/sshcollectorpro/switchinfo/simulate"
)

func main() {
	var (
		configPath string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:          "simdevice",
		Short:        "Run an SSH switch simulator for switchinfo",
		Long:         `simdevice 按 simulate.yaml 启动模拟交换机，登录用户名决定设备，exec 命令返回预置回显。`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: logLevel, Output: "console"}); err != nil {
				return err
			}
			sc, err := simulate.LoadConfig(configPath)
			if err != nil {
				return err
			}
			srv, err := simulate.Start(sc)
			if err != nil {
				return fmt.Errorf("failed to start simulator: %w", err)
			}
			users := make([]string, 0, len(sc.Devices))
			for _, d := range sc.Devices {
				users = append(users, d.Username)
			}
			logger.WithField("addr", srv.Addr()).Infof("Simulate: started with devices %s", strings.Join(users, ", "))

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			srv.Stop()
			st := srv.Stats()
			logger.Infof("Simulate: stopped (accepted=%d peak=%d rejected=%d)", st.Accepted, st.Peak, st.Rejected)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "simulate/simulate.yaml", "simulator config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
