// Tool gokr-rsync is an rsync-compatible client and daemon.
package main

import (
	"context"
	"log"
	"os"

	"github.com/oferchen/rsync-sub002/internal/maincmd"
	"github.com/oferchen/rsync-sub002/internal/rsyncos"
)

func main() {
	osenv := rsyncos.NewStdEnv()
	if _, err := maincmd.Main(context.Background(), osenv, os.Args, nil); err != nil {
		log.Fatal(err)
	}
}
