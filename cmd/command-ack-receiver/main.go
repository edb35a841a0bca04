package main

import (
	"github.com/landslide-monitor/pipeline/pkg/assemblers"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var (
	version   string = "v0"    // api version
	sha1ver   string = "-"     // sha1 revision used to build the program
	buildTime string = "devTS" // when the executable was built
)

func main() {
	log.SetFormatter(helpers.LogFormatter)
	log.Infof("starting command-ack-receiver: version=%s buildTime=%s sha1ver=%s", version, buildTime, sha1ver)

	conf, err := config.LoadConfig[config.CommandAckReceiverConfig](config.DefaultCommandAckReceiverConfig())
	if err != nil {
		log.Fatalf("something went wrong while loading config. Exiting: %s", err)
	}

	globalLogLevel, err := log.ParseLevel(string(conf.Logs.Level))
	if err != nil {
		log.Warn("unknown log level. defaulting to 'info' log level")
		globalLogLevel = log.InfoLevel
	}
	log.SetLevel(globalLogLevel)

	log.Infof("global log level set to '%s'", globalLogLevel)

	confBytes, err := yaml.Marshal(conf)
	if err != nil {
		log.Fatalf("could not dump yaml config: %s", err)
	}

	log.Debugf("===================================================")
	log.Debugf("%s", confBytes)
	log.Debugf("===================================================")

	_, _, err = assemblers.AssembleCommandAckReceiverService(*conf)
	if err != nil {
		log.Fatalf("could not run Command Ack Receiver daemon. Exiting: %s", err)
	}

	forever := make(chan struct{})
	<-forever
}
