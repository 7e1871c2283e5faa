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

package ipmatch

import "fmt"

// SyntaxError describes the first grammar violation found in a pattern.
// Matching functions never return it, they report valid=false instead.
// Use Check to obtain it.
type SyntaxError struct {
	Pattern string
	Offset  int
	Reason  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid ip pattern %q at offset %d: %s", e.Pattern, e.Offset, e.Reason)
}

func syntaxErr(off int, reason string) *SyntaxError {
	return &SyntaxError{Offset: off, Reason: reason}
}
