package main

import (
	"github.com/siegeld/dantectl/internal/api"
	"github.com/siegeld/dantectl/internal/api/ws"
	"github.com/siegeld/dantectl/internal/app"
	"github.com/siegeld/dantectl/internal/dante"
	"github.com/siegeld/dantectl/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	api.Init() // init HTTP API server
	ws.Init()  // init WebSocket API

	dante.Init() // discovery, polling, SAP capture

	shell.RunUntilSignal()

	dante.Stop()
}
