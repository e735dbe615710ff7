//go:build !test
// +build !test

// main runs the fieldbus gateway daemon.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ctrlworks/fieldbus"
)

const (
	_logLvlDef   = zapcore.InfoLevel
	_logFileDef  = "logs/fieldbus/gateway.log"
	_confFileDef = "/etc/fieldbus.d/gateway.yaml"
	_localDef    = "0.0.0.0:13174"
)

// nolint:funlen // main func
func main() {
	logLvl := zap.LevelFlag("loglvl", _logLvlDef, "log level for zap logger")
	logFile := flag.String("logf", _logFileDef, "path to the log file")
	configFile := flag.String("conf", _confFileDef, "path to the configuration file")
	localAddr := flag.String("local", _localDef, "local address for the HTTP API")

	flag.Parse()

	logConfig := newLogger(*logFile, *logLvl)

	logger, err := logConfig.Build()
	if err != nil {
		log.Fatalf("build log configuration: %v", err)
	}

	sugar := logger.Sugar()

	conf, err := fieldbus.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	go fieldbus.MonitorConfig(sugar, *configFile, &conf)

	clients, err := connectBuses(sugar, conf)
	if err != nil {
		sugar.Fatalw("connect buses", "error", err)
	}

	registry, err := fieldbus.BuildRegistry(conf, clients)
	if err != nil {
		sugar.Fatalw("build device registry", "error", err)
	}

	for name := range registry {
		sugar.Infow("registered", "device", name)
	}

	var sinks []fieldbus.SnapshotSink

	streamAddr := conf.Stream.Listen
	if streamAddr == "" {
		streamAddr = fieldbus.DefaultStreamAddress
	}

	u := url.URL{Scheme: "ws", Host: streamAddr, Path: fieldbus.StreamEndpoint}

	pub, err := fieldbus.NewStreamPublisher(u.String())
	if err != nil {
		sugar.Fatalw("create snapshot stream publisher", "error", err)
	}

	defer pub.Quit()

	sinks = append(sinks, pub)

	if conf.MQTT.Broker != "" {
		bridge, err := fieldbus.NewMQTTBridge(conf.MQTT.Broker, conf.MQTT.TopicPrefix, sugar)
		if err != nil {
			sugar.Fatalw("connect MQTT bridge", "error", err)
		}

		defer bridge.Close()

		sinks = append(sinks, bridge)
	}

	router := mux.NewRouter()
	router.HandleFunc(fieldbus.DevicesEndpoint, fieldbus.HandleDevices(sugar, registry))
	router.HandleFunc(fieldbus.ReadEndpoint, fieldbus.HandleRead(sugar, registry))
	router.HandleFunc(fieldbus.WriteEndpoint, fieldbus.HandleWrite(sugar, registry))
	fieldbus.EnableAll(router)

	if conf.API.Listen != "" {
		*localAddr = conf.API.Listen
	}

	go func() {
		if err := http.ListenAndServe(*localAddr, router); err != nil {
			sugar.Errorw("http.ListenAndServe", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorCAN(ctx, sugar, conf)

	sugar.Info("starting poller")

	fieldbus.NewPoller(registry, sugar, sinks...).Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	s := <-sig
	sugar.Infow("shutting down", "signal", s.String())

	cancel()

	for name, client := range clients {
		if err := client.Close(); err != nil {
			sugar.Warnw("close bus client", "bus", name, "error", err)
		}
	}
}
