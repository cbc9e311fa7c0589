package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/beacon/cmd/beacon-hub/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewHubCommand(ctx).Execute(); err != nil {
		os.Exit(1)
	}
}
