package server

import (
	"context"
	"errors"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/internal/admin"
	"github.com/faciam-dev/gcadmin/internal/logger"
)

// initQueue picks the background dispatcher: a Redis list when RedisURL is
// set, else an in-process queue. The local dispatcher is returned so its
// workers can be started once the site exists.
func (s *Server) initQueue(cfg Config) (*action.LocalDispatcher, error) {
	if cfg.RedisURL == "" {
		d := action.NewLocalDispatcher(cfg.Workers, cfg.QueueSize)
		s.queue = d
		s.closers = append(s.closers, d.Close)
		return d, nil
	}
	d, err := action.NewRedisDispatcher(cfg.RedisURL, cfg.QueueKey)
	if err != nil {
		return nil, err
	}
	s.queue = d
	s.closers = append(s.closers, func() { _ = d.Client.Close() })
	return nil, nil
}

func (s *Server) startWorkers(ctx context.Context, cfg Config, site *admin.Site, local *action.LocalDispatcher) {
	if local != nil {
		local.Start(ctx, site)
		return
	}
	rd, ok := s.queue.(*action.RedisDispatcher)
	if !ok {
		return
	}
	for i := range cfg.Workers {
		w := &action.Worker{Client: rd.Client, Key: rd.Key, Exec: site}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L.Error("action worker stopped", "worker", i, "err", err)
			}
		}()
	}
}
