package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"platewatch/internal/config"
	"platewatch/internal/db"
	"platewatch/internal/domain/radar"
	"platewatch/internal/logger"
	"platewatch/internal/repository"
)

// Seeds synthetic radar readings for local development. Cameras and plates
// are drawn from small fixed pools so the trust and clone scorers have
// enough repetition to produce non-trivial output.
func main() {
	count := flag.Int("count", 5000, "number of readings to generate")
	hours := flag.Int("hours", 24, "spread readings over the trailing N hours")
	seed := flag.Int64("seed", 0, "rng seed, 0 uses the current time")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	readings := generate(rng, *count, *hours)

	repo := repository.NewReadingRepository(database)
	if err := repo.Insert(context.Background(), readings); err != nil {
		appLogger.Fatal().Err(err).Msg("failed to insert readings")
	}

	appLogger.Info().
		Int("count", len(readings)).
		Int64("seed", *seed).
		Msg("seeded readings")
}

type seedCamera struct {
	id      string
	company string
	lat     float64
	lon     float64
}

var cameras = []seedCamera{
	{id: "1000000001", company: "NORTHGATE", lat: -23.5505, lon: -46.6333},
	{id: "1000000002", company: "NORTHGATE", lat: -23.5629, lon: -46.6544},
	{id: "1000000003", company: "RIVERSIDE", lat: -23.5739, lon: -46.6419},
	{id: "1000000004", company: "RIVERSIDE", lat: -23.5880, lon: -46.6322},
	{id: "1000000005", company: "HILLTOP", lat: -23.5475, lon: -46.6961},
}

var vehicleTypes = []string{"CAR", "TRUCK", "MOTORCYCLE", "BUS"}

const plateLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func generate(rng *rand.Rand, count, hours int) []radar.RawReading {
	now := time.Now().UTC()
	window := time.Duration(hours) * time.Hour

	// A small plate pool guarantees rereads and cross-camera pairs.
	plates := make([]string, 200)
	for i := range plates {
		plates[i] = randomPlate(rng)
	}

	readings := make([]radar.RawReading, 0, count)
	for i := 0; i < count; i++ {
		cam := cameras[rng.Intn(len(cameras))]
		observed := now.Add(-time.Duration(rng.Int63n(int64(window))))
		captured := observed.Add(time.Duration(rng.Intn(30)) * time.Second)

		plate := plates[rng.Intn(len(plates))]
		if rng.Intn(50) == 0 {
			plate = "" // undetected read
		}

		readings = append(readings, radar.RawReading{
			CameraID:    cam.id,
			Plate:       plate,
			VehicleType: vehicleTypes[rng.Intn(len(vehicleTypes))],
			Speed:       20 + rng.Float64()*80,
			ObservedAt:  observed,
			CapturedAt:  captured,
			Company:     cam.company,
			Lat:         ptr(cam.lat + rng.Float64()*0.001),
			Lon:         ptr(cam.lon + rng.Float64()*0.001),
		})
	}
	return readings
}

func randomPlate(rng *rand.Rand) string {
	b := make([]byte, 7)
	for i := 0; i < 3; i++ {
		b[i] = plateLetters[rng.Intn(len(plateLetters))]
	}
	for i := 3; i < 7; i++ {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}

func ptr(v float64) *float64 {
	return &v
}
