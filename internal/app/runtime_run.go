package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("officebot runtime starting", "addr", r.cfg.HTTPAddr, "workbook_dir", r.cfg.WorkbookDir)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.refresher.Start(groupCtx)
	})
	group.Go(func() error {
		return r.report.Start(groupCtx)
	})
	group.Go(func() error {
		return r.selfstudy.Start(groupCtx)
	})
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
