// Package gooselog routes goose migration output into zap.
package gooselog

import (
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

type logger struct {
	l *zap.Logger
}

var _ goose.Logger = (*logger)(nil)

// New returns a goose.Logger writing through l. A nil l discards output.
func New(l *zap.Logger) goose.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &logger{l: l.Named("migrate").WithOptions(zap.AddCallerSkip(1))}
}

func (g *logger) Printf(format string, v ...interface{}) {
	g.l.Info(message(format, v))
}

func (g *logger) Fatalf(format string, v ...interface{}) {
	g.l.Fatal(message(format, v))
}

func message(format string, v []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}
