// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	// 1970-01-08 是 unix 第 7 天，every_2d 不命中、every_7d 命中
	return time.Date(1970, 1, 8, hour, minute, 0, 0, time.UTC)
}

func TestScheduleDueAt(t *testing.T) {
	cases := []struct {
		schedule Schedule
		t        time.Time
		want     bool
	}{
		{ScheduleNever, at(0, 0), false},
		{ScheduleEvery1m, at(13, 37), true},
		{ScheduleEvery2m, at(13, 36), true},
		{ScheduleEvery2m, at(13, 37), false},
		{ScheduleEvery5m, at(13, 35), true},
		{ScheduleEvery5m, at(13, 36), false},
		{ScheduleEvery10m, at(13, 40), true},
		{ScheduleEvery30m, at(13, 30), true},
		{ScheduleEvery30m, at(13, 31), false},
		{ScheduleEvery1h, at(13, 0), true},
		{ScheduleEvery1h, at(13, 1), false},
		{ScheduleEvery2h, at(14, 0), true},
		{ScheduleEvery2h, at(13, 0), false},
		{ScheduleEvery5h, at(10, 0), true},
		{ScheduleEvery5h, at(11, 0), false},
		{ScheduleEvery12h, at(12, 0), true},
		{ScheduleEvery12h, at(11, 0), false},
		{ScheduleEvery1d, at(0, 0), true},
		{ScheduleEvery1d, at(0, 1), false},
		{ScheduleEvery1d, at(1, 0), false},
		{ScheduleEvery2d, at(0, 0), false},  // 第 7 天，奇数
		{ScheduleEvery7d, at(0, 0), true},   // 第 7 天，7 的倍数
		{Schedule("midnight"), at(0, 0), true},
		{Schedule("midnight"), at(0, 1), false},
		{Schedule("noon"), at(12, 0), true},
		{Schedule("noon"), at(0, 0), false},
		{Schedule("3pm"), at(15, 0), true},
		{Schedule("11pm"), at(23, 0), true},
		{Schedule("1am"), at(1, 0), true},
	}
	for _, c := range cases {
		if got := c.schedule.DueAt(c.t); got != c.want {
			t.Errorf("%s.DueAt(%s) = %v, want %v", c.schedule, c.t.Format("15:04"), got, c.want)
		}
	}
}

func TestScheduleDueAtEvery2d(t *testing.T) {
	day8 := time.Date(1970, 1, 9, 0, 0, 0, 0, time.UTC) // unix 第 8 天
	if !ScheduleEvery2d.DueAt(day8) {
		t.Error("every_2d should fire on even unix days")
	}
}

func TestScheduleDueAtRespectsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// UTC 15:00 == UTC+9 的午夜
	utc := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	if Schedule("midnight").DueAt(utc) {
		t.Error("midnight should not fire at 15:00 UTC when evaluated in UTC")
	}
	if !Schedule("midnight").DueAt(utc.In(loc)) {
		t.Error("midnight should fire at local midnight")
	}
}

func TestScheduleValid(t *testing.T) {
	for _, s := range []Schedule{ScheduleNever, ScheduleEvery1m, ScheduleEvery7d, "midnight", "noon", "11pm", "4am"} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []Schedule{"", "every_3m", "13pm", "sometimes"} {
		if s.Valid() {
			t.Errorf("%s should be invalid", s)
		}
	}
}

func TestHourLabel(t *testing.T) {
	cases := map[int]Schedule{0: "midnight", 1: "1am", 11: "11am", 12: "noon", 13: "1pm", 23: "11pm"}
	for hour, want := range cases {
		got, err := HourLabel(hour)
		if err != nil {
			t.Fatalf("HourLabel(%d): %v", hour, err)
		}
		if got != want {
			t.Errorf("HourLabel(%d) = %s, want %s", hour, got, want)
		}
	}
	if _, err := HourLabel(24); err == nil {
		t.Error("HourLabel(24) should fail")
	}
}

func TestScheduleInterval(t *testing.T) {
	if ScheduleEvery5m.Interval() != 5*time.Minute {
		t.Errorf("every_5m interval = %s", ScheduleEvery5m.Interval())
	}
	if ScheduleNever.Interval() != 0 {
		t.Errorf("never interval = %s, want 0", ScheduleNever.Interval())
	}
	if Schedule("noon").Interval() != 0 {
		t.Errorf("noon interval = %s, want 0", Schedule("noon").Interval())
	}
}
