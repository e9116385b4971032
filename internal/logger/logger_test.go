package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew_WritesDailyJSONFile(t *testing.T) {
	root := t.TempDir()
	undo := zap.ReplaceGlobals(zap.NewNop())
	defer undo()

	log, err := New(root, false, "debug")
	if err != nil {
		t.Fatal(err)
	}
	log.Debugw("donation stored", "id", "d-1")
	_ = log.Sync()

	raw, err := os.ReadFile(filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	for _, want := range []string{`"msg":"logger online"`, `"msg":"donation stored"`, `"level":"debug"`, `"id":"d-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s", want)
		}
	}
	if !zap.L().Core().Enabled(zap.DebugLevel) {
		t.Fatal("global logger not replaced")
	}
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	undo := zap.ReplaceGlobals(zap.NewNop())
	defer undo()

	log, err := New(t.TempDir(), false, "chatty")
	if err != nil {
		t.Fatal(err)
	}
	if log.Desugar().Core().Enabled(zap.DebugLevel) {
		t.Fatal("debug enabled for unknown level")
	}
	if !log.Desugar().Core().Enabled(zap.InfoLevel) {
		t.Fatal("info disabled")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != zap.S() {
		t.Fatal("empty context should yield the global logger")
	}
	l := zap.NewExample().Sugar()
	if FromContext(WithContext(context.Background(), l)) != l {
		t.Fatal("stored logger not returned")
	}
}
