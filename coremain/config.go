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
	"errors"
	"fmt"
	"strings"

	"github.com/IrineSistiana/ipguard/mlog"
	"github.com/IrineSistiana/ipguard/pkg/data_provider"
)

type Config struct {
	Log     mlog.LogConfig `yaml:"log"`
	Include []string       `yaml:"include"`
	Lists   []ListConfig   `yaml:"lists"`
	Gate    GateConfig     `yaml:"gate"`
	API     APIConfig      `yaml:"api"`
}

// ListConfig represents a rule list config.
type ListConfig struct {
	// Tag, required
	Tag string `yaml:"tag"`

	// Patterns are inline rules, one rule per element.
	Patterns []string `yaml:"patterns"`

	// Files are rule files, one rule per line.
	Files []data_provider.DataProviderConfig `yaml:"files"`

	// Redis is an optional shared rule set.
	Redis *RedisConfig `yaml:"redis"`

	// CacheSize is the number of cached lookup results. Zero disables the cache.
	CacheSize int `yaml:"cache_size"`
}

type RedisConfig struct {
	URL             string `yaml:"url"`
	Key             string `yaml:"key"`
	RefreshInterval uint   `yaml:"refresh_interval"` // (sec)
}

type GateConfig struct {
	Listen         string   `yaml:"listen"`
	Backend        string   `yaml:"backend"`
	Deny           []string `yaml:"deny"`
	Allow          []string `yaml:"allow"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	IdleTimeout    uint     `yaml:"idle_timeout"` // (sec)
	DialTimeout    uint     `yaml:"dial_timeout"` // (sec)
	InternSize     int      `yaml:"intern_size"`  // max number of interned client addresses, 0 means no limit.
}

type APIConfig struct {
	HTTP string `yaml:"http"`
}

// Validate checks list tags and the references from the gate to lists.
// It does not open any file or connection.
func (c *Config) Validate() error {
	tags := make(map[string]struct{})
	for i, lc := range c.Lists {
		if err := checkTag(lc.Tag); err != nil {
			return fmt.Errorf("list #%d, %w", i, err)
		}
		if _, dup := tags[lc.Tag]; dup {
			return fmt.Errorf("duplicated list tag %s", lc.Tag)
		}
		tags[lc.Tag] = struct{}{}
	}

	if len(c.Gate.Listen) > 0 && len(c.Gate.Backend) == 0 {
		return errors.New("gate has no backend")
	}
	for _, refs := range [][]string{c.Gate.Deny, c.Gate.Allow, c.Gate.TrustedProxies} {
		for _, tag := range refs {
			if _, ok := tags[tag]; !ok {
				return fmt.Errorf("gate, %w: %s", ErrListNotFound, tag)
			}
		}
	}
	return nil
}

// checkTag rejects tags that cannot be used in the api path.
func checkTag(tag string) error {
	if len(tag) == 0 {
		return errors.New("list has no tag")
	}
	if strings.ContainsAny(tag, "/ \t") {
		return fmt.Errorf("invalid list tag %q, tag cannot contain slash or space", tag)
	}
	return nil
}
