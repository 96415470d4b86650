package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher"
	"github.com/sciplat/usher/config"
)

func main() {
	configFile := flag.String("config-file", "usher.yaml", "path to the service configuration")
	flag.Parse()

	c, err := config.Load(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if err := usher.Run(c); err != nil {
		log.Fatal(err)
	}
}
