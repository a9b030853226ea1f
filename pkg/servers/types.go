package servers

import (
	"context"
	"net/http"

	"github.com/qmdx00/lifecycle"
	"github.com/robfig/cron/v3"
)

var (
	_ Server     = (*baseServer)(nil)
	_ Server     = (*httpServer)(nil)
	_ Server     = (*cronServer)(nil)
	_ CronServer = (*cron.Cron)(nil)
)

type Server interface {
	lifecycle.Server
}

// CronServer is the part of *cron.Cron the cron server drives.
type CronServer interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Start()
	Stop() context.Context
}

// Job is a unit of periodic work run by the cron server.
type Job func(ctx context.Context) error

//

var (
	_ BuildHttpServerFn = NewHttpServer
)

type BuildHttpServerFn func(name string, server *http.Server) Server
