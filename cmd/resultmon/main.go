package main

import (
	"flag"
	"log"
	"os"

	"github.com/golang/protobuf/jsonpb"
	structpb "github.com/golang/protobuf/ptypes/struct"

	fx "github.com/amber-eeg/prodloader/pkg/framework"
	"github.com/amber-eeg/prodloader/pkg/report"
)

var (
	mqttURL = "mqtt://localhost:1883/amber/"
	station string
)

func init() {
	if val := os.Getenv("AMBER_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&station, "station", station, "Only show results of this station.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	ctx := fx.NewRunner().HandleSignals().Context
	bus, err := report.NewBus(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := bus.Connect(ctx); err != nil {
		log.Fatalln(err)
	}
	defer bus.Close()

	m := jsonpb.Marshaler{OrigName: true}
	err = bus.Subscribe(ctx, station, func(from string, result *structpb.Struct) {
		s, err := m.MarshalToString(result)
		if err != nil {
			log.Printf("%s: bad result: %v", from, err)
			return
		}
		log.Printf("%s: %s", from, s)
	})
	if err != nil {
		log.Fatalln(err)
	}
	<-ctx.Done()
}
