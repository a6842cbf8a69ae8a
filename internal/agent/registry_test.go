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
	"context"
	"reflect"
	"testing"

	"github.com/huginn/huginn-sub005/internal/event"
)

type nopBehavior struct{}

func (nopBehavior) Check(ctx context.Context, run *Run) error { return nil }
func (nopBehavior) Receive(ctx context.Context, run *Run, events []event.Event) error {
	return nil
}
func (nopBehavior) CanBeScheduled() bool   { return true }
func (nopBehavior) CanReceiveEvents() bool { return true }

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("webhook", func() Behavior { return nopBehavior{} })

	b, err := r.Resolve("webhook")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b == nil {
		t.Fatal("Resolve returned nil behavior")
	}

	if _, err := r.Resolve("unknown"); err == nil {
		t.Error("Resolve of unregistered type should fail")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("dup", func() Behavior { return nopBehavior{} })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	r.Register("dup", func() Behavior { return nopBehavior{} })
}

func TestRegistryRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func() Behavior { return nopBehavior{} })
	r.Register("a", func() Behavior { return nopBehavior{} })
	if got := r.Registered(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Registered = %v, want [a b]", got)
	}
}

func TestRunEmitCountsEvents(t *testing.T) {
	a := newTestAgent("a1")
	var emitted []map[string]interface{}
	run := NewRun(a, func(ctx context.Context, payload map[string]interface{}) (*event.Event, error) {
		emitted = append(emitted, payload)
		return &event.Event{ID: int64(len(emitted)), AgentID: a.ID, Payload: payload}, nil
	})

	ev, err := run.Emit(context.Background(), map[string]interface{}{"k": "v"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if ev.ID != 1 {
		t.Errorf("event id = %d", ev.ID)
	}
	if run.Emitted() != 1 {
		t.Errorf("Emitted = %d, want 1", run.Emitted())
	}
}
