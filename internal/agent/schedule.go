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
	"fmt"
	"time"
)

// Schedule 调度标签。取值为固定集合：never、interval 族（every_1m 等）
// 与每日小时族（midnight、1am ... noon ... 11pm）。
type Schedule string

const (
	ScheduleNever Schedule = "never"

	ScheduleEvery1m  Schedule = "every_1m"
	ScheduleEvery2m  Schedule = "every_2m"
	ScheduleEvery5m  Schedule = "every_5m"
	ScheduleEvery10m Schedule = "every_10m"
	ScheduleEvery30m Schedule = "every_30m"
	ScheduleEvery1h  Schedule = "every_1h"
	ScheduleEvery2h  Schedule = "every_2h"
	ScheduleEvery5h  Schedule = "every_5h"
	ScheduleEvery12h Schedule = "every_12h"
	ScheduleEvery1d  Schedule = "every_1d"
	ScheduleEvery2d  Schedule = "every_2d"
	ScheduleEvery7d  Schedule = "every_7d"
)

// intervals interval 族标签对应的周期
var intervals = map[Schedule]time.Duration{
	ScheduleEvery1m:  time.Minute,
	ScheduleEvery2m:  2 * time.Minute,
	ScheduleEvery5m:  5 * time.Minute,
	ScheduleEvery10m: 10 * time.Minute,
	ScheduleEvery30m: 30 * time.Minute,
	ScheduleEvery1h:  time.Hour,
	ScheduleEvery2h:  2 * time.Hour,
	ScheduleEvery5h:  5 * time.Hour,
	ScheduleEvery12h: 12 * time.Hour,
	ScheduleEvery1d:  24 * time.Hour,
	ScheduleEvery2d:  48 * time.Hour,
	ScheduleEvery7d:  7 * 24 * time.Hour,
}

// hourLabels 每日小时族：下标即小时
var hourLabels = [24]Schedule{
	"midnight", "1am", "2am", "3am", "4am", "5am",
	"6am", "7am", "8am", "9am", "10am", "11am",
	"noon", "1pm", "2pm", "3pm", "4pm", "5pm",
	"6pm", "7pm", "8pm", "9pm", "10pm", "11pm",
}

var hourBySchedule = func() map[Schedule]int {
	m := make(map[Schedule]int, len(hourLabels))
	for h, label := range hourLabels {
		m[label] = h
	}
	return m
}()

// HourLabel 返回给定小时（0-23）对应的每日调度标签
func HourLabel(hour int) (Schedule, error) {
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %d", hour)
	}
	return hourLabels[hour], nil
}

// Valid 报告 s 是否为已知调度标签
func (s Schedule) Valid() bool {
	if s == ScheduleNever {
		return true
	}
	if _, ok := intervals[s]; ok {
		return true
	}
	_, ok := hourBySchedule[s]
	return ok
}

// Interval 返回 interval 族标签的周期；非 interval 标签返回 0
func (s Schedule) Interval() time.Duration {
	return intervals[s]
}

// DueAt 报告调度标签在时刻 t（分钟精度）是否到期。
// t 先按其所在时区取小时与分钟；interval 族对齐到周期边界，
// every_1d 及更长的周期按 UTC 日序号取模对齐。
func (s Schedule) DueAt(t time.Time) bool {
	if s == ScheduleNever {
		return false
	}
	if hour, ok := hourBySchedule[s]; ok {
		return t.Hour() == hour && t.Minute() == 0
	}
	switch s {
	case ScheduleEvery1m:
		return true
	case ScheduleEvery2m:
		return t.Minute()%2 == 0
	case ScheduleEvery5m:
		return t.Minute()%5 == 0
	case ScheduleEvery10m:
		return t.Minute()%10 == 0
	case ScheduleEvery30m:
		return t.Minute()%30 == 0
	case ScheduleEvery1h:
		return t.Minute() == 0
	case ScheduleEvery2h:
		return t.Minute() == 0 && t.Hour()%2 == 0
	case ScheduleEvery5h:
		return t.Minute() == 0 && t.Hour()%5 == 0
	case ScheduleEvery12h:
		return t.Minute() == 0 && t.Hour()%12 == 0
	case ScheduleEvery1d:
		return t.Minute() == 0 && t.Hour() == 0
	case ScheduleEvery2d:
		return t.Minute() == 0 && t.Hour() == 0 && unixDay(t)%2 == 0
	case ScheduleEvery7d:
		return t.Minute() == 0 && t.Hour() == 0 && unixDay(t)%7 == 0
	}
	return false
}

func unixDay(t time.Time) int64 {
	return t.Unix() / 86400
}
