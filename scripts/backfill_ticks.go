package main

// Backfills historical ticks from the MT5 gateway into ClickHouse, one day
// per request so a long range never goes through a single oversized gateway
// call.
//
// Usage:
//   go run scripts/backfill_ticks.go --symbols EURUSD,GBPUSD --start 2024-01-01 --end 2024-03-31

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	chclient "pairwatch/internal/adapters/clickhouse"
	"pairwatch/internal/adapters/config"
	"pairwatch/internal/adapters/mt5"
	chrepo "pairwatch/internal/repository/clickhouse"
	"pairwatch/pkg/logger"
)

func main() {
	symbols := flag.String("symbols", "", "Comma-separated symbols to backfill (default: all visible)")
	startDate := flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "End date (YYYY-MM-DD), exclusive")
	flag.Parse()

	from, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		fmt.Printf("Error: invalid start date (use YYYY-MM-DD): %v\n", err)
		os.Exit(1)
	}
	to, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		fmt.Printf("Error: invalid end date (use YYYY-MM-DD): %v\n", err)
		os.Exit(1)
	}
	if !from.Before(to) {
		fmt.Println("Error: start must be before end")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		fmt.Printf("Error: init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get().With("component", "backfill")

	ctx := context.Background()

	gateway := mt5.NewClient(cfg.Gateway)

	ch, err := chclient.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("connect clickhouse: %v", err)
	}
	defer ch.Close()

	repo := chrepo.NewTickRepository(ch.Conn())
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure tick schema: %v", err)
	}

	list, err := resolveSymbols(ctx, gateway, *symbols)
	if err != nil {
		log.Fatalf("resolve symbols: %v", err)
	}

	log.Infow("Backfilling ticks", "symbols", list, "from", from, "to", to)

	var total int
	for _, symbol := range list {
		n, err := backfillSymbol(ctx, gateway, repo, symbol, from, to, log)
		if err != nil {
			log.Errorf("Backfill failed for %s after %d ticks: %v", symbol, n, err)
			continue
		}
		total += n
	}

	log.Infow("Backfill complete", "symbols", len(list), "ticks", total)
}

func resolveSymbols(ctx context.Context, gateway *mt5.Client, raw string) ([]string, error) {
	if raw == "" {
		return gateway.VisibleSymbols(ctx)
	}

	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if symbol := strings.TrimSpace(part); symbol != "" {
			list = append(list, symbol)
		}
	}
	return list, nil
}

// backfillSymbol walks the range one day at a time
func backfillSymbol(
	ctx context.Context,
	gateway *mt5.Client,
	repo *chrepo.TickRepository,
	symbol string,
	from, to time.Time,
	log *logger.Logger,
) (int, error) {
	var total int
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		if next.After(to) {
			next = to
		}

		ticks, err := gateway.Ticks(ctx, symbol, day, next)
		if err != nil {
			return total, err
		}
		if len(ticks) == 0 {
			continue
		}

		if err := repo.InsertBatch(ctx, symbol, ticks); err != nil {
			return total, err
		}
		total += len(ticks)
		log.Debugw("Backfilled day", "symbol", symbol, "day", day.Format("2006-01-02"), "ticks", len(ticks))
	}

	log.Infow("Symbol backfilled", "symbol", symbol, "ticks", total)
	return total, nil
}
