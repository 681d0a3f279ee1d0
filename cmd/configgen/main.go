package main

import (
	"flag"
	"log"

	"github.com/danmuck/ibcsim/internal/config"
)

func main() {
	layout := flag.String("layout", config.LayoutMininet, "registry layout: mininet|loopback")
	zones := flag.Int("zones", 3, "number of zones")
	output := flag.String("output", config.DefaultRegistryPath, "output path for registry template")
	validate := flag.Bool("validate", false, "validate an existing registry file")
	input := flag.String("input", "", "registry path for validation (defaults to -output)")
	force := flag.Bool("force", false, "overwrite existing registry file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = *output
		}
		reg, err := config.LoadRegistry(path)
		if err != nil {
			log.Fatal(err)
		}
		for _, id := range reg.ZoneIDs() {
			ep, _ := reg.Zone(id)
			log.Printf("%s: command=%s relay=%s relayer_hub=%s relayer_zone=%s", id, ep.CommandAddr, ep.RelayAddr, ep.RelayerHubAddr, ep.RelayerZoneAddr)
		}
		log.Printf("Validated registry at %s (hub %s, %d zones)", path, reg.HubAddr(), len(reg.ZoneIDs()))
		return
	}

	if err := config.WriteTemplate(*output, *layout, *zones, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s registry for %d zones to %s", *layout, *zones, *output)
}
