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

package tools

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"

	"github.com/IrineSistiana/ipguard/mlog"
	"github.com/IrineSistiana/ipguard/pkg/ipmatch"
	"github.com/IrineSistiana/ipguard/pkg/matcher/patternlist"
	"github.com/IrineSistiana/ipguard/pkg/utils"
	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match pattern ip",
		Args:  cobra.ExactArgs(2),
		Short: "Match an ip address against an ip pattern.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd.OutOrStdout(), args[0], args[1])
		},
		SilenceUsage: true,
	}
}

func runMatch(w io.Writer, pattern, ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return err
	}
	if err := ipmatch.Check(pattern); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, ipmatch.Match(pattern, addr))
	return err
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate list_file...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Check rule list files and print invalid lines.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args)
		},
		SilenceUsage: true,
	}
}

func runValidate(w io.Writer, files []string) error {
	var errs utils.Errors
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			errs.Append(err)
			continue
		}
		l := patternlist.NewList()
		warnings, err := patternlist.LoadFromReader(l, file, f)
		f.Close()
		if err != nil {
			errs.Append(fmt.Errorf("failed to read %s, %w", file, err))
			continue
		}
		for _, warn := range warnings {
			fmt.Fprintln(w, warn.String())
		}
		if len(warnings) > 0 {
			errs.Append(fmt.Errorf("%s: %d invalid line(s)", file, len(warnings)))
		}
		mlog.S().Infof("%s: %d valid entries, %d invalid lines", file, l.Len(), len(warnings))
	}
	return errs.Build()
}

func newCIDRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cidr network ip bits",
		Args:  cobra.ExactArgs(3),
		Short: "Check whether an ip address is in network/bits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			network, err := netip.ParseAddr(args[0])
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(args[1])
			if err != nil {
				return err
			}
			bits, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid bits, %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ipmatch.MatchCIDR(network, addr, bits))
			return err
		},
		SilenceUsage: true,
	}
}

func newClassCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classc ip1 ip2",
		Args:  cobra.ExactArgs(2),
		Short: "Check whether two ip addresses share the same /24 network.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := netip.ParseAddr(args[0])
			if err != nil {
				return err
			}
			b, err := netip.ParseAddr(args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ipmatch.MatchClassC(a, b))
			return err
		},
		SilenceUsage: true,
	}
}
