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
	"cmp"
	"fmt"
	"strings"
	"time"
)

const (
	LocalDateLayout     = "2006-01-02"
	LocalDateTimeLayout = "2006-01-02T15:04:05.999999999"
)

// LocalDate is a calendar date without time or zone.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func NewLocalDate(year int, month time.Month, day int) LocalDate {
	return LocalDateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// LocalDateOf returns the date part of t in t's location.
func LocalDateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// ParseLocalDate parses "2006-01-02". A trailing time part is ignored.
func ParseLocalDate(s string) (LocalDate, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(LocalDateLayout) {
		s = s[:len(LocalDateLayout)]
	}
	t, err := time.Parse(LocalDateLayout, s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid local date %q: %w", s, err)
	}
	return LocalDateOf(t), nil
}

func (d LocalDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d LocalDate) String() string { return d.Time().Format(LocalDateLayout) }

func (d LocalDate) IsZero() bool { return d == LocalDate{} }

func (d LocalDate) Compare(o LocalDate) int {
	if c := cmp.Compare(d.Year, o.Year); c != 0 {
		return c
	}
	if c := cmp.Compare(d.Month, o.Month); c != 0 {
		return c
	}
	return cmp.Compare(d.Day, o.Day)
}

// LocalDateTime is a date and wall-clock time without zone.
type LocalDateTime struct {
	Date       LocalDate
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

func NewLocalDateTime(year int, month time.Month, day, hour, min, sec, nsec int) LocalDateTime {
	return LocalDateTimeOf(time.Date(year, month, day, hour, min, sec, nsec, time.UTC))
}

// LocalDateTimeOf returns the wall-clock reading of t in t's location.
func LocalDateTimeOf(t time.Time) LocalDateTime {
	return LocalDateTime{
		Date:       LocalDateOf(t),
		Hour:       t.Hour(),
		Minute:     t.Minute(),
		Second:     t.Second(),
		Nanosecond: t.Nanosecond(),
	}
}

// ParseLocalDateTime parses "2006-01-02T15:04:05" with optional fraction;
// a space separator is also accepted.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	s = strings.Replace(strings.TrimSpace(s), " ", "T", 1)
	t, err := time.Parse(LocalDateTimeLayout, s)
	if err != nil {
		if t2, err2 := time.Parse("2006-01-02T15:04", s); err2 == nil {
			return LocalDateTimeOf(t2), nil
		}
		return LocalDateTime{}, fmt.Errorf("invalid local date-time %q: %w", s, err)
	}
	return LocalDateTimeOf(t), nil
}

func (dt LocalDateTime) Time() time.Time {
	return time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day, dt.Hour, dt.Minute, dt.Second, dt.Nanosecond, time.UTC)
}

func (dt LocalDateTime) String() string { return dt.Time().Format(LocalDateTimeLayout) }

func (dt LocalDateTime) IsZero() bool { return dt == LocalDateTime{} }

func (dt LocalDateTime) Compare(o LocalDateTime) int {
	return dt.Time().Compare(o.Time())
}
