package server

import (
	"database/sql"

	"github.com/faciam-dev/gcadmin/internal/events"
	"github.com/faciam-dev/gcadmin/internal/logger"
)

// initEvents builds the events dispatcher from the sink configuration file.
// Failed deliveries land in <prefix>events_failed when a database is set.
func initEvents(db *sql.DB, cfg Config) (*events.Dispatcher, error) {
	evtConf, err := events.LoadConfig(cfg.EventsConfig)
	if err != nil {
		return nil, err
	}
	var dlq events.DLQ
	if db != nil {
		dlq = &events.SQLDLQ{DB: db, Driver: cfg.DB.Driver, TablePrefix: cfg.DB.TablePrefix}
	}
	d, err := events.Build(evtConf, dlq)
	if err != nil {
		return nil, err
	}
	logger.L.Info("events dispatcher ready", "sinks", d.Len())
	return d, nil
}
