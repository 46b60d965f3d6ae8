package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/pagecache"
)

func TestFieldsAreOrderedAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("window recached", pagecache.Fields{"prefix": "42", "ns": "comments", "err": errors.New("x")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "pagecache" || e.Message != "window recached" {
		t.Fatalf("unexpected entry: %+v", e.Entry)
	}
	var keys []string
	for _, f := range e.Context {
		keys = append(keys, f.Key)
	}
	if len(keys) != 3 || keys[0] != "err" || keys[1] != "ns" || keys[2] != "prefix" {
		t.Fatalf("unexpected field order: %v", keys)
	}
	if e.Context[0].Type != zapcore.ErrorType {
		t.Fatalf("err should be an error field")
	}
}
