//go:build !test
// +build !test

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ctrlworks/fieldbus/canbus"
)

type canIDs struct {
	ids *[]uint32
}

func (c canIDs) String() string {
	if c.ids == nil || len(*c.ids) == 0 {
		return ""
	}

	s := fmt.Sprintf("%X", (*c.ids)[0])

	for _, id := range (*c.ids)[1:] {
		s += "," + fmt.Sprintf("%X", id)
	}

	return s
}

func (c canIDs) Set(s string) error {
	fields := strings.Split(s, ",")
	if len(fields) == 0 {
		return fmt.Errorf("invalid can ID list: %v", c)
	}

	for _, id := range fields {
		id64, err := strconv.ParseUint(id, 16, 32)
		if err != nil {
			return err
		}

		(*c.ids) = append(*c.ids, uint32(id64))
	}

	return nil
}

func main() {
	var cs canIDs
	cs.ids = &[]uint32{}

	fs := flag.NewFlagSet("sniffer", flag.ExitOnError)
	fs.Var(&cs, "ids", "CAN IDs in hex to sniff; empty sniffs everything")
	ifName := fs.String("ifname", "can0", "CAN interface name")
	dataOnly := fs.Bool("data", false, "drop remote transmission requests")

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	bus, err := canbus.Dial(*ifName, canbus.WithRecvTimeout(time.Millisecond*500))
	if err != nil {
		log.Printf("dial %s: %v", *ifName, err)
		return
	}

	defer func() {
		_ = bus.Close()
	}()

	var filter canbus.Filter

	if len(*cs.ids) > 0 {
		filter = canbus.MatchAny(*cs.ids...)
	}

	if *dataOnly {
		only := canbus.DataFramesOnly()
		ids := filter

		filter = func(f canbus.Frame) bool {
			return only(f) && (ids == nil || ids(f))
		}
	}

	mux := canbus.NewMux(bus)

	defer func() {
		_ = mux.Close()
	}()

	frames, cancel := mux.Subscribe(filter, 64)
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGHUP)

	go func() {
		<-c
		log.Println("CTRL-C received, shutting down... (CTRL-C again to force)")
		_ = mux.Close()
		<-c
		os.Exit(1)
	}()

	// main sniff loop
	for f := range frames {
		log.Printf("%s %s", *ifName, f)
	}
}
