package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applogger "MarketPulse/pkg/logger"
)

// Runner schedules jobs on a robfig/cron instance. Every job receives the
// runner's base context and panics are recovered and logged.
type Runner struct {
	cron    *cron.Cron
	l       *applogger.Logger
	baseCtx context.Context
}

func New(l *applogger.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if l == nil {
		l = applogger.Nop()
	}
	cl := cronLogger{l: l}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		l:       l,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec, e.g. "@every 30s" or "0 */5 * * * *".
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() { job(r.baseCtx) })
}

// Every registers job at a fixed interval.
func (r *Runner) Every(interval time.Duration, job func(context.Context)) (cron.EntryID, error) {
	return r.Add("@every "+interval.String(), job)
}

func (r *Runner) Entries() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.l.Info("cron started", applogger.Int("jobs", r.Entries()))
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.l.Info("cron stopped")
}

// cronLogger adapts applogger to cron.Logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kv(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kv(keysAndValues), applogger.Error(err))...)
}

func kv(keysAndValues []interface{}) []applogger.Field {
	out := make([]applogger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, applogger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
