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
	"github.com/IrineSistiana/ipguard/coremain"
	"github.com/spf13/cobra"
)

func init() {
	coremain.AddSubCmd(newMatchCmd())
	coremain.AddSubCmd(newValidateCmd())
	coremain.AddSubCmd(newCIDRCmd())
	coremain.AddSubCmd(newClassCCmd())

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Tools that can generate/convert ipguard config file.",
	}
	configCmd.AddCommand(newGenCmd(), newConvCmd())
	coremain.AddSubCmd(configCmd)
}
