/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^([a-zA-Z0-9_\-.]+)@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.)|(([a-zA-Z0-9\-]+\.)+))([a-zA-Z]{2,4}|[0-9]{1,3})(]?)$`)

// Email is an e-mail address kept lower-cased and trimmed.
type Email string

func NewEmail(s string) Email {
	return Email(strings.ToLower(strings.TrimSpace(s)))
}

// Normalized returns the lower-cased, trimmed address.
func (e Email) Normalized() string {
	return strings.ToLower(strings.TrimSpace(string(e)))
}

func (e Email) String() string { return e.Normalized() }

// LocalPart is the part before '@'.
func (e Email) LocalPart() string {
	s := e.Normalized()
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return s
}

func (e Email) IsValid() bool {
	s := e.Normalized()
	return len(s) <= 128 && emailPattern.MatchString(s)
}

func (e Email) Validate() error {
	if !e.IsValid() {
		return fmt.Errorf("invalid email %q", string(e))
	}
	return nil
}
