package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/cacheaside"
)

func TestFieldsAndLevels(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base, "cacheaside")

	l.Warn("cache read failed", cacheaside.Fields{"key": "cache:shop:1", "err": errors.New("boom")})
	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel || e.Message != "cache read failed" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data["component"] != "cacheaside" || e.Data["key"] != "cache:shop:1" {
		t.Fatalf("data = %v", e.Data)
	}
	if err, _ := e.Data[logrus.ErrorKey].(error); err == nil || err.Error() != "boom" {
		t.Fatalf("error = %v", e.Data[logrus.ErrorKey])
	}

	l.Debug("d", nil)
	l.Info("i", nil)
	l.Error("e", nil)
	if n := len(hook.AllEntries()); n != 4 {
		t.Fatalf("entries = %d", n)
	}
}
