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
	"strings"

	"github.com/IrineSistiana/ipguard/mlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConvCmd() *cobra.Command {
	var (
		in  string
		out string
	)

	c := &cobra.Command{
		Use:   "conv -i input_cfg.yaml -o output_cfg.json",
		Args:  cobra.NoArgs,
		Short: "Convert configuration file format. Supported extensions: " + strings.Join(viper.SupportedExts, ", "),
		Run: func(cmd *cobra.Command, args []string) {
			if err := convCfg(in, out); err != nil {
				mlog.S().Fatal(err)
			}
		},
	}
	c.PersistentFlags().StringVarP(&in, "in", "i", "", "input config")
	c.PersistentFlags().StringVarP(&out, "out", "o", "", "output config")
	c.MarkFlagRequired("in")
	c.MarkFlagRequired("out")
	c.MarkFlagFilename("in")
	c.MarkFlagFilename("out")
	return c
}

func newGenCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "gen config.yaml",
		Short: "Generate a template config. Supported extensions: " + strings.Join(viper.SupportedExts, ", "),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := genCfg(args[0]); err != nil {
				mlog.S().Fatal(err)
			}
		},
	}
	return c
}

func convCfg(in, out string) error {
	v := viper.New()
	v.SetConfigFile(in)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.SafeWriteConfigAs(out)
}

// templateConfig is the config written by "config gen".
type templateConfig struct {
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Lists []templateList `yaml:"lists"`
	Gate  struct {
		Listen         string   `yaml:"listen"`
		Backend        string   `yaml:"backend"`
		Deny           []string `yaml:"deny"`
		TrustedProxies []string `yaml:"trusted_proxies"`
		IdleTimeout    uint     `yaml:"idle_timeout"`
	} `yaml:"gate"`
	API struct {
		HTTP string `yaml:"http"`
	} `yaml:"api"`
}

type templateList struct {
	Tag       string   `yaml:"tag"`
	Patterns  []string `yaml:"patterns"`
	CacheSize int      `yaml:"cache_size,omitempty"`
}

func genCfg(out string) error {
	cfg := new(templateConfig)
	cfg.Log.Level = "info"
	cfg.Lists = []templateList{
		{
			Tag:       "banned",
			Patterns:  []string{"10.0.*.*", "203.0.113.0/24", "::ffff:192.168.0.0-192.168.0.255"},
			CacheSize: 4096,
		},
		{
			Tag:      "proxies",
			Patterns: []string{"127.0.0.1"},
		},
	}
	cfg.Gate.Listen = "0.0.0.0:2593"
	cfg.Gate.Backend = "127.0.0.1:2594"
	cfg.Gate.Deny = []string{"banned"}
	cfg.Gate.TrustedProxies = []string{"proxies"}
	cfg.Gate.IdleTimeout = 300
	cfg.API.HTTP = "127.0.0.1:9080"

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(b))); err != nil {
		return err
	}

	return v.SafeWriteConfigAs(out)
}
