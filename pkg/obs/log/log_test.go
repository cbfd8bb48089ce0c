package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/settld/core/pkg/obs/log"
)

type recordingLogger struct {
	infos []string
}

func (r *recordingLogger) Info(args ...any)  { r.infos = append(r.infos, "info") }
func (r *recordingLogger) Infof(string, ...any) {}
func (r *recordingLogger) Infoln(args ...any) {}
func (r *recordingLogger) Error(args ...any)  {}
func (r *recordingLogger) Errorf(string, ...any) {}
func (r *recordingLogger) Errorln(args ...any) {}
func (r *recordingLogger) Warn(args ...any)  {}
func (r *recordingLogger) Warnf(string, ...any) {}
func (r *recordingLogger) Warnln(args ...any) {}
func (r *recordingLogger) Debug(args ...any) {}
func (r *recordingLogger) Debugf(string, ...any) {}
func (r *recordingLogger) Debugln(args ...any) {}
func (r *recordingLogger) Fatal(args ...any) {}
func (r *recordingLogger) Fatalf(string, ...any) {}
func (r *recordingLogger) Fatalln(args ...any) {}
func (r *recordingLogger) WithFields(fields ...any) log.Logger { return r }
func (r *recordingLogger) Sync() error { return nil }

func TestFromContext_ReturnsNoneLoggerWhenAbsent(t *testing.T) {
	l := log.FromContext(context.Background())
	assert.IsType(t, &log.NoneLogger{}, l)
}

func TestContextWithLogger_RoundTrips(t *testing.T) {
	rec := &recordingLogger{}
	ctx := log.ContextWithLogger(context.Background(), rec)

	got := log.FromContext(ctx)
	got.Info("hello")

	assert.Same(t, rec, got)
	assert.Equal(t, []string{"info"}, rec.infos)
}

func TestNoneLogger_NeverPanics(t *testing.T) {
	var l log.NoneLogger

	assert.NotPanics(t, func() {
		l.Info("x")
		l.Errorf("y %d", 1)
		derived := l.WithFields("k", "v")
		derived.Warn("z")
		assert.NoError(t, l.Sync())
	})
}
