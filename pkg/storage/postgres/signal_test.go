package postgres_test

import (
	"context"
	"testing"
	"time"

	"quanttrader/config"
	"quanttrader/internal/model"
	"quanttrader/pkg/storage/postgres"
)

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=invalid port=5432 user=fail password=fail dbname=fail sslmode=disable"

	_, err := postgres.NewClient(invalidDSN)
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}

func TestToSignalRecord(t *testing.T) {
	emitted := time.Now()
	sig := model.TradingSignal{
		ID:           "BTCUSDT-1700000000000000000",
		Timestamp:    emitted,
		Symbol:       "BTCUSDT",
		Side:         model.SideLong,
		StrategyName: "pivot-bounce",
		EntryPrice:   50000,
		StopLoss:     48600,
		TakeProfit:   50650,
		Quantity:     0.1,
		Metadata:     map[string]string{"targetMethod": "atr"},
	}

	record := postgres.ToSignalRecord(sig)

	if record.SignalID != sig.ID {
		t.Errorf("unexpected signal id: %s", record.SignalID)
	}
	if record.Side != "LONG" {
		t.Errorf("unexpected side: %s", record.Side)
	}
	if record.TargetMethod != "atr" {
		t.Errorf("unexpected target method: %s", record.TargetMethod)
	}
	if !record.EmittedAt.Equal(emitted) {
		t.Errorf("unexpected emitted at: %v", record.EmittedAt)
	}
	if record.StopLoss != 48600 || record.TakeProfit != 50650 {
		t.Errorf("unexpected targets: %+v", record)
	}
}

// Requires a local Postgres; run manually.
// go test -v --run ^TestSignalCRUD$
func TestSignalCRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a local Postgres instance")
	}

	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "yourpw",
		DBName:   "quanttrader",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	client, err := postgres.NewClient(cfg.DSN("dev"))
	if err != nil {
		t.Fatalf("failed to connect to DB: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	if err := client.AutoMigrateSignalRecord(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	record := &postgres.SignalRecord{
		SignalID:     "BTCUSDT-test-crud",
		Symbol:       "BTCUSDT",
		Side:         "LONG",
		StrategyName: "pivot-bounce",
		EmittedAt:    now,
		EntryPrice:   50000,
		StopLoss:     48600,
		TakeProfit:   50650,
		Quantity:     0.1,
		TargetMethod: "atr",
	}

	if err := client.InsertSignal(ctx, record); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Duplicate signal ids are ignored, not errors.
	if err := client.InsertSignal(ctx, record); err != nil {
		t.Errorf("duplicate insert should be a no-op, got: %v", err)
	}

	got, err := client.GetSignalsBySymbol(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) == 0 || got[0].SignalID != "BTCUSDT-test-crud" {
		t.Errorf("unexpected signal rows: %+v", got)
	}

	if err := client.DeleteOldSignals(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Errorf("delete failed: %v", err)
	}

	got, err = client.GetSignalsBySymbol(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no rows after delete, got %d", len(got))
	}
}
