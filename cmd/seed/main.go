package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/koios/lotmap/internal/config"
	"github.com/koios/lotmap/internal/redis"
	"github.com/koios/lotmap/pkg/models"
	"go.uber.org/zap"
)

func main() {
	layoutsDir := flag.String("layouts", "", "directory of YAML lot layouts to write")
	lotID := flag.String("lot", "", "lot to modify")
	spotID := flag.String("spot", "", "spot whose status to set (with -lot and -status)")
	status := flag.String("status", "", "new status: available or occupied")
	clearLot := flag.Bool("clear", false, "delete every spot of -lot")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer client.Close()

	switch {
	case *layoutsDir != "":
		err = seedLayouts(ctx, client, *layoutsDir, logger)
	case *lotID != "" && *clearLot:
		err = client.ClearLot(ctx, *lotID)
		if err == nil {
			logger.Info("Cleared lot", zap.String("lot_id", *lotID))
		}
	case *lotID != "" && *spotID != "" && *status != "":
		s := models.SpotStatus(*status)
		if !s.Known() {
			logger.Warn("Writing unrecognized status", zap.String("status", *status))
		}
		err = client.SetStatus(ctx, *lotID, *spotID, s)
		if err == nil {
			logger.Info("Set spot status",
				zap.String("lot_id", *lotID),
				zap.String("spot_id", *spotID),
				zap.String("status", *status))
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: seed -layouts DIR | -lot ID -spot ID -status STATUS | -lot ID -clear")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal("Seed failed", zap.Error(err))
	}
}

func seedLayouts(ctx context.Context, client *redis.Client, dir string, logger *zap.Logger) error {
	registry := models.NewLayoutRegistry()
	if err := registry.LoadLayouts(dir); err != nil {
		return fmt.Errorf("failed to load layouts from %s: %w", dir, err)
	}
	for path, err := range registry.Skipped() {
		logger.Warn("Skipped layout file", zap.String("path", path), zap.Error(err))
	}

	for _, layout := range registry.GetLayoutsList() {
		if err := client.PutSpots(ctx, layout.ID, layout.SpotList()); err != nil {
			return err
		}
		logger.Info("Seeded lot",
			zap.String("lot_id", layout.ID),
			zap.String("name", layout.Name),
			zap.Int("spots", len(layout.Spots)))
	}
	return nil
}
