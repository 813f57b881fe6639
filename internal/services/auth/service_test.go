package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/common"
	badgerstorage "github.com/ternarybob/obsoleta/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, func(key string)) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "data")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	kv := badgerstorage.NewKVStorage(db, logger)
	setKey := func(key string) {
		if err := kv.Set(context.Background(), "auth/api_key", key, "API key"); err != nil {
			t.Fatalf("Failed to store API key: %v", err)
		}
	}
	return NewService(kv, logger), setKey
}

func TestCheckOpenWhenNoKeyConfigured(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	required, err := service.Required(ctx)
	if err != nil {
		t.Fatalf("Required failed: %v", err)
	}
	if required {
		t.Error("Expected no key required on a fresh store")
	}

	ok, err := service.Check(ctx, "")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ok {
		t.Error("Expected open access when no key is configured")
	}
}

func TestCheckWithConfiguredKey(t *testing.T) {
	service, setKey := newTestService(t)
	ctx := context.Background()
	setKey("s3cret")

	required, err := service.Required(ctx)
	if err != nil {
		t.Fatalf("Required failed: %v", err)
	}
	if !required {
		t.Error("Expected key required once configured")
	}

	cases := []struct {
		presented string
		want      bool
	}{
		{"s3cret", true},
		{"wrong", false},
		{"", false},
		{"s3cret ", false},
	}
	for _, tc := range cases {
		ok, err := service.Check(ctx, tc.presented)
		if err != nil {
			t.Fatalf("Check(%q) failed: %v", tc.presented, err)
		}
		if ok != tc.want {
			t.Errorf("Check(%q) = %v, expected %v", tc.presented, ok, tc.want)
		}
	}
}
