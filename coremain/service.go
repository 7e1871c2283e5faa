/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of ipguard.
 *
 * ipguard is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * ipguard is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package coremain

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/IrineSistiana/ipguard/mlog"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// initialized by "service" sub command
	svc    service.Service
	svcCfg = &service.Config{
		Name:        "ipguard",
		DisplayName: "ipguard",
		Description: "An ip pattern based connection gate for game servers",
	}
)

const (
	svcStatusWait   = time.Second * 3
	svcPollInterval = time.Millisecond * 200
)

// serverService runs a Guard under the system service manager.
type serverService struct {
	f *serverFlags
	g *Guard
}

func (ss *serverService) Start(s service.Service) error {
	mlog.L().Info("starting service", zap.String("platform", s.Platform()))
	g, err := NewServer(ss.f)
	if err != nil {
		return err
	}
	ss.g = g
	go func() {
		if err := g.GetSafeClose().WaitClosed(); err != nil {
			g.Logger().Fatal("guard exited", zap.Error(err))
		}
		g.Logger().Info("guard exited")
	}()
	return nil
}

func (ss *serverService) Stop(_ service.Service) error {
	if ss.g == nil {
		return nil
	}
	ss.g.Logger().Info("service is shutting down")
	ss.g.CloseWithErr(nil)
	return ss.g.GetSafeClose().WaitClosed()
}

// initService will init svc for sub command "service"
func initService(_ *cobra.Command, _ []string) error {
	s, err := service.New(&serverService{}, svcCfg)
	if err != nil {
		return fmt.Errorf("cannot init service, %w", err)
	}
	svc = s
	return nil
}

// svcWorkingDir returns the absolute working dir of the service.
// The default is the dir of the current executable.
func svcWorkingDir(dir string) (string, error) {
	if len(dir) > 0 {
		return filepath.Abs(dir)
	}
	ep, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("cannot solve current executable path, %w", err)
	}
	return filepath.Dir(ep), nil
}

// svcArgs returns the arguments the service manager runs ipguard with.
func svcArgs(sf *serverFlags) []string {
	args := []string{"start", "--as-service", "-d", sf.dir}
	if len(sf.c) > 0 {
		args = append(args, "-c", sf.c)
	}
	if sf.cpu > 0 {
		args = append(args, "--cpu", strconv.Itoa(sf.cpu))
	}
	return args
}

// checkSvcConfig loads and validates the config the service will start
// with. Includes and files are resolved from sf.dir, like the service does.
// It returns the config file used.
func checkSvcConfig(sf *serverFlags) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if err := os.Chdir(sf.dir); err != nil {
		return "", fmt.Errorf("cannot enter working dir, %w", err)
	}
	defer os.Chdir(wd)

	cfg, fileUsed, err := loadConfig(sf.c)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config %s, %w", fileUsed, err)
	}
	for _, lc := range cfg.Lists {
		for _, fc := range lc.Files {
			if _, err := os.Stat(fc.File); err != nil {
				return "", fmt.Errorf("list %s, %w", lc.Tag, err)
			}
		}
	}
	return tryGetAbsPath(fileUsed), nil
}

func newSvcInstallCmd() *cobra.Command {
	sf := new(serverFlags)
	var noCheck bool
	c := &cobra.Command{
		Use:   "install [-d working_dir] [-c config_file] [--cpu n] [--no-check]",
		Short: "Install ipguard as a system service.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := svcWorkingDir(sf.dir)
			if err != nil {
				return fmt.Errorf("cannot solve working dir, %w", err)
			}
			sf.dir = dir
			mlog.L().Info("service working dir", zap.String("dir", sf.dir))

			if !noCheck {
				f, err := checkSvcConfig(sf)
				if err != nil {
					return fmt.Errorf("config check failed, use --no-check to install anyway, %w", err)
				}
				mlog.L().Info("config checked", zap.String("file", f))
			}

			svcCfg.Arguments = svcArgs(sf)
			return svc.Install()
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	c.Flags().StringVarP(&sf.dir, "dir", "d", "", "working dir, default is the dir of the executable")
	c.Flags().StringVarP(&sf.c, "config", "c", "", "config path")
	c.Flags().IntVar(&sf.cpu, "cpu", 0, "set runtime.GOMAXPROCS of the service")
	c.Flags().BoolVar(&noCheck, "no-check", false, "do not check the config before installing")
	return c
}

func svcStatusString(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// waitSvcRunning polls the status of s until it is running or timeout.
func waitSvcRunning(s service.Service, timeout time.Duration) (service.Status, error) {
	deadline := time.Now().Add(timeout)
	for {
		st, err := s.Status()
		if err != nil || st == service.StatusRunning || !time.Now().Before(deadline) {
			return st, err
		}
		time.Sleep(svcPollInterval)
	}
}

// reportSvcRunning logs whether the service came up after start or restart.
func reportSvcRunning(s service.Service) {
	st, err := waitSvcRunning(s, svcStatusWait)
	switch {
	case err != nil:
		mlog.L().Warn("cannot get service status", zap.Error(err))
	case st == service.StatusRunning:
		mlog.L().Info("service is running")
	case st == service.StatusStopped:
		mlog.L().Error("service is stopped, check ipguard log and system service log for more info")
	default:
		mlog.L().Warn("cannot get service status, system may not support this operation")
	}
}

func newSvcCtlCmds() []*cobra.Command {
	ctl := []struct {
		use, short string
		do         func(s service.Service) error
		wait       bool
	}{
		{"uninstall", "Uninstall ipguard from system service.", service.Service.Uninstall, false},
		{"start", "Start ipguard system service.", service.Service.Start, true},
		{"stop", "Stop ipguard system service.", service.Service.Stop, false},
		{"restart", "Restart ipguard system service.", service.Service.Restart, true},
	}

	cmds := make([]*cobra.Command, 0, len(ctl))
	for _, a := range ctl {
		a := a
		cmds = append(cmds, &cobra.Command{
			Use:   a.use,
			Short: a.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.do(svc); err != nil {
					return err
				}
				if a.wait {
					reportSvcRunning(svc)
				}
				return nil
			},
			DisableFlagsInUseLine: true,
			SilenceUsage:          true,
		})
	}
	return cmds
}

func newSvcStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Status of ipguard system service.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := svc.Status()
			if err != nil {
				return fmt.Errorf("cannot get service status, %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), svcStatusString(s))
			return nil
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
}
