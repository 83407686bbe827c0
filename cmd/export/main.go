// Command export writes a folder archive to a local directory, or prints a
// signed export link for the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"folderzip/internal/auth"
	"folderzip/internal/circuitbreaker"
	"folderzip/internal/config"
	"folderzip/internal/database"
	"folderzip/internal/delivery"
	"folderzip/internal/exporter"
	"folderzip/internal/metrics"
	"folderzip/internal/storage"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (overrides CONFIG_FILE env var)")
	folderID := flag.String("folder", "", "Folder ID to export (required)")
	name := flag.String("name", "", "Archive name without .zip (defaults to the stored folder name)")
	outDir := flag.String("out", ".", "Directory to write the archive into")
	password := flag.String("password", "", "Encrypt archive entries with this password")
	sign := flag.Bool("sign", false, "Print a signed export link instead of exporting")
	baseURL := flag.String("base-url", "http://localhost:8080", "Service URL used with -sign")
	ttl := flag.Duration("ttl", 24*time.Hour, "Link lifetime used with -sign (0 = no expiry)")
	flag.Parse()

	if *folderID == "" {
		flag.Usage()
		os.Exit(2)
	}

	if _, err := config.LoadEnvFile(*configFile); err != nil {
		log.Fatal(err)
	}

	if *sign {
		link, err := signedLink(*baseURL, *folderID, []byte(os.Getenv("SIGNING_SECRET")), *ttl, time.Now())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(link)
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *folderID, *name, *outDir, *password); err != nil {
		logger.Error("export failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, folderID, name, outDir, password string) error {
	m := metrics.New()

	db, err := database.New(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	blobs, err := storage.New(ctx, cfg, m, circuitbreaker.New("storage", cfg, m))
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	if name == "" {
		folder, err := db.GetFolder(ctx, folderID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("folder %s not found", folderID)
			}
			return err
		}
		name = folder.Name
	}
	name = strings.TrimSuffix(strings.TrimSpace(name), ".zip")
	if name == "" {
		name = folderID
	}

	sink, err := delivery.NewDirSink(outDir)
	if err != nil {
		return err
	}

	var opts []exporter.Option
	if password != "" {
		opts = append(opts, exporter.WithPassword(password))
	}

	exp := exporter.New(logger, db, blobs, m, cfg.MaxConcurrent, cfg.MaxFilesPerExport)
	result, err := exp.Export(ctx, folderID, name, sink, opts...)
	if err != nil {
		return err
	}
	if sink.Path() == "" {
		return errors.New("archive was not written")
	}

	logger.Info("archive written", zap.String("path", sink.Path()))
	return json.NewEncoder(os.Stdout).Encode(result)
}

// signedLink builds an export URL carrying expiry and signature parameters
func signedLink(baseURL, folderID string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("SIGNING_SECRET is required to sign links")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	u = u.JoinPath("folders", folderID, "export")

	expiry := ""
	if ttl > 0 {
		expiry = strconv.FormatInt(now.Add(ttl).Unix(), 10)
	}

	q := url.Values{}
	if expiry != "" {
		q.Set("expiry", expiry)
	}
	q.Set("signature", auth.NewVerifier(secret, true, metrics.New()).Sign(folderID, expiry))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
