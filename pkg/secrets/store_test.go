package secrets

import (
	"context"
	"testing"
)

func TestResolvePlaceholder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(map[string]string{
		"DATABASE_DSN": "postgres://huginn:pw@localhost:5432/huginn",
	})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "placeholder resolved", raw: "${DATABASE_DSN}", want: "postgres://huginn:pw@localhost:5432/huginn"},
		{name: "plain value untouched", raw: "postgres://inline", want: "postgres://inline"},
		{name: "empty key untouched", raw: "${}", want: "${}"},
		{name: "half placeholder untouched", raw: "${DATABASE_DSN", want: "${DATABASE_DSN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(ctx, store, tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestResolveMissingSecret(t *testing.T) {
	ctx := context.Background()
	if _, err := Resolve(ctx, NewMemoryStore(), "${MISSING}"); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestResolveNilStore(t *testing.T) {
	got, err := Resolve(context.Background(), nil, "${ANY}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "${ANY}" {
		t.Fatalf("nil store should return value as-is, got %q", got)
	}
}

func TestEnvStoreKeyNormalization(t *testing.T) {
	ctx := context.Background()
	t.Setenv("HUGINN_TEST_TOKEN", "tok-1")

	store := NewEnvStore()
	for _, key := range []string{"HUGINN_TEST_TOKEN", "huginn.test.token", "huginn-test-token"} {
		got, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
		if got != "tok-1" {
			t.Fatalf("Get(%q) = %q, want tok-1", key, got)
		}
	}

	if _, err := store.Get(ctx, "huginn.test.absent"); err == nil {
		t.Fatalf("expected error for unset variable")
	}
}

func TestMemoryStoreContract(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "queue.redis.password", "s3cret"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "queue.redis.password")
	if err != nil || got != "s3cret" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	keys, err := store.List(ctx, "queue.")
	if err != nil || len(keys) != 1 {
		t.Fatalf("List = %v, %v", keys, err)
	}

	if err := store.Delete(ctx, "queue.redis.password"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "queue.redis.password"); err == nil {
		t.Fatalf("expected error after delete")
	}
}
