package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	op := telemetry.StartOperation(ctx, "repository.load")
	op.End(nil)

	fmt.Println("telemetry ready")
	// Output: telemetry ready
}

// Example_eventSubscription demonstrates subscribing to record events.
func Example_eventSubscription() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Printf("%s %s\n", e.Type, e.RecordID)
	}, telemetry.FilterByType(telemetry.EventTypeRecordAdded))

	_ = tel.Events.PublishRecordChanged(telemetry.EventTypeRecordAdded, "1. Acme", "a1b2c3d4")
	_ = tel.Events.PublishRecordChanged(telemetry.EventTypeRecordDeleted, "1. Acme", "a1b2c3d4")
	// Output: record.added a1b2c3d4
}

// Example_timer demonstrates timing an operation.
func Example_timer() {
	timer := telemetry.NewTimer()
	time.Sleep(time.Millisecond)
	fmt.Println(timer.Duration() > 0)
	// Output: true
}
