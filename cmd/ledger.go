package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/estimap/recreation/internal/model"
	"github.com/estimap/recreation/internal/store"
)

// runRecorder records a single run in the ledger. A nil recorder does
// nothing, so callers need not check whether recording is enabled.
type runRecorder struct {
	st  store.Store
	run *model.Run
}

func startRun(ctx context.Context, scenario, city string) (*runRecorder, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	return recordRun(ctx, st, scenario, city)
}

func recordRun(ctx context.Context, st store.Store, scenario, city string) (*runRecorder, error) {
	run, err := st.CreateRun(ctx, scenario, city)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		_ = st.Close()
		return nil, err
	}
	return &runRecorder{st: st, run: run}, nil
}

func (r *runRecorder) Complete(ctx context.Context, result *model.RunResult) {
	if r == nil {
		return
	}
	if err := r.st.CompleteRun(context.WithoutCancel(ctx), r.run.ID, result); err != nil {
		zap.L().Warn("recording completed run", zap.String("run", r.run.ID), zap.Error(err))
	}
}

func (r *runRecorder) Fail(ctx context.Context, runErr error) {
	if r == nil {
		return
	}
	if err := r.st.FailRun(context.WithoutCancel(ctx), r.run.ID, runErr); err != nil {
		zap.L().Warn("recording failed run", zap.String("run", r.run.ID), zap.Error(err))
	}
}

func (r *runRecorder) Close() {
	if r == nil {
		return
	}
	_ = r.st.Close()
}
