package main

import (
	"context"
	"fmt"
	"github.com/OpenTransitTools/fleetsim/app/fleet-sim/fleetsim"
	"github.com/OpenTransitTools/fleetsim/business/data/fleetstore"
	"github.com/OpenTransitTools/fleetsim/foundation/geocode"
	"github.com/OpenTransitTools/fleetsim/foundation/osrm"
	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "FLEET_SIM : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args  conf.Args
		Redis struct {
			Host     string `conf:"default:0.0.0.0:6379"`
			Password string `conf:"noprint"`
			DB       int    `conf:"default:0"`
		}
		Vehicle struct {
			UpdatePeriod   time.Duration `conf:"default:250ms"`
			PollingPeriod  time.Duration `conf:"default:100ms"`
			ReadySlack     time.Duration `conf:"default:0s"`
			TimeoutSeconds int           `conf:"default:30"`
		}
		Jitter struct {
			StatCapacity int `conf:"default:200"`
		}
		Directions struct {
			Url    string `conf:"default:https://router.project-osrm.org"`
			ApiKey string `conf:"noprint"`
		}
		Geocoder struct {
			Url string `conf:"default:https://nominatim.openstreetmap.org"`
		}
		Nats struct {
			Url string
		}
		Web struct {
			Host string `conf:"default:0.0.0.0:8087"`
		}
		Host struct {
			Id string
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Simulate a fleet of vehicles driving real world routes"
	const prefix = "FLEETSIM"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			printUsage(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	if cfg.Vehicle.UpdatePeriod <= 0 || cfg.Vehicle.PollingPeriod <= 0 {
		return fmt.Errorf("vehicle periods must be positive, got update %s polling %s",
			cfg.Vehicle.UpdatePeriod, cfg.Vehicle.PollingPeriod)
	}
	if cfg.Vehicle.PollingPeriod > cfg.Vehicle.UpdatePeriod {
		return fmt.Errorf("vehicle polling period %s must not exceed update period %s",
			cfg.Vehicle.PollingPeriod, cfg.Vehicle.UpdatePeriod)
	}
	readySlack := cfg.Vehicle.ReadySlack
	if readySlack <= 0 {
		readySlack = cfg.Vehicle.PollingPeriod
	}

	if cfg.Host.Id == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Printf("main: hostname lookup failed, using UNKNOWN: %v", err)
			hostname = "UNKNOWN"
		}
		cfg.Host.Id = hostname
	}
	log.Printf("main: This instance writes vehicles as manager host %q", cfg.Host.Id)

	// =========================================================================
	// Start Fleet Store

	log.Println("main: Initializing fleet store support")

	store := fleetstore.Open(fleetstore.Config{
		Host:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		log.Printf("main: Fleet store stopping : %s", cfg.Redis.Host)
		if err := store.Close(); err != nil {
			log.Printf("main: error closing fleet store: %v", err)
		}
	}()

	statusCtx, statusCancel := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer statusCancel()
	if err := store.StatusCheck(statusCtx); err != nil {
		return fmt.Errorf("connecting to fleet store at %s: %w", cfg.Redis.Host, err)
	}

	// =========================================================================
	// Upstream adapters and NATS

	directions := osrm.MakeClient(osrm.Config{
		BaseURL: cfg.Directions.Url,
		APIKey:  cfg.Directions.ApiKey,
	})
	geocoder := geocode.MakeClient(geocode.Config{
		BaseURL: cfg.Geocoder.Url,
	})

	var natsConn *nats.Conn
	if cfg.Nats.Url != "" {
		log.Printf("main: Connecting to NATS at %s", cfg.Nats.Url)
		natsConn, err = nats.Connect(cfg.Nats.Url)
		if err != nil {
			return fmt.Errorf("connecting to nats at %s: %w", cfg.Nats.Url, err)
		}
		defer natsConn.Close()
	} else {
		log.Println("main: NATS url not set, vehicle state publishing disabled")
	}

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	fleetsim.StartServices(log, fleetsim.Config{
		HostID:         cfg.Host.Id,
		UpdatePeriod:   cfg.Vehicle.UpdatePeriod,
		PollingPeriod:  cfg.Vehicle.PollingPeriod,
		ReadySlack:     readySlack,
		VehicleTimeout: time.Duration(cfg.Vehicle.TimeoutSeconds) * time.Second,
		JitterCapacity: cfg.Jitter.StatCapacity,
		WebHost:        cfg.Web.Host,
	}, store, directions, geocoder, natsConn, shutdown)

	return nil
}

func printUsage(confUsage string) {
	fmt.Println(confUsage)
}
