package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/cacheaside"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", nil)
	l.Info("i", cacheaside.Fields{"key": "cache:shop:1"})
	l.Warn("w", cacheaside.Fields{"err": errors.New("boom")})
	l.Error("e", cacheaside.Fields{"attempt": 3})

	entries := logs.AllUntimed()
	if len(entries) != 4 {
		t.Fatalf("entries = %d", len(entries))
	}
	wantLvls := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLvls[i] {
			t.Fatalf("entry %d level = %v", i, e.Level)
		}
	}
	if got := entries[1].ContextMap()["key"]; got != "cache:shop:1" {
		t.Fatalf("key field = %v", got)
	}
	if got := entries[2].ContextMap()["err"]; got != "boom" {
		t.Fatalf("err field = %v", got)
	}
}

func TestNilLogger(t *testing.T) {
	New(nil).Error("dropped", cacheaside.Fields{"k": 1})
}
