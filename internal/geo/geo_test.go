package geo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCurrentReturnsFix(t *testing.T) {
	altitude := 1240.5
	provider := &StaticProvider{Position: Position{Latitude: -43.5321, Longitude: 172.6362, Altitude: &altitude, Accuracy: 4.2}}
	pos, err := provider.Current(context.Background(), Options{HighAccuracy: true})
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if pos.Latitude != -43.5321 || pos.Longitude != 172.6362 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if pos.Altitude == nil || *pos.Altitude != altitude {
		t.Fatalf("altitude lost: %+v", pos)
	}
	if pos.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestCurrentTimesOut(t *testing.T) {
	provider := &FuncProvider{
		Fix: func(ctx context.Context, _ Options) (Position, error) {
			<-ctx.Done()
			return Position{}, ctx.Err()
		},
	}
	start := time.Now()
	_, err := provider.Current(context.Background(), Options{Timeout: 20 * time.Millisecond})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not honored, took %v", elapsed)
	}
}

func TestTimeoutClampedToDefault(t *testing.T) {
	opts := Options{Timeout: time.Hour}
	if got := opts.timeout(); got != DefaultTimeout {
		t.Fatalf("expected clamp to %v, got %v", DefaultTimeout, got)
	}
	opts = Options{}
	if got := opts.timeout(); got != DefaultTimeout {
		t.Fatalf("expected default %v, got %v", DefaultTimeout, got)
	}
	opts = Options{Timeout: time.Second}
	if got := opts.timeout(); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
}

func TestCurrentWithoutSource(t *testing.T) {
	provider := &FuncProvider{}
	if _, err := provider.Current(context.Background(), Options{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWatchDeliversFixesUntilStopped(t *testing.T) {
	var count atomic.Int64
	provider := &FuncProvider{
		Fix: func(context.Context, Options) (Position, error) {
			return Position{Latitude: 1, Longitude: 2, Timestamp: time.Now()}, nil
		},
		Interval: 5 * time.Millisecond,
	}
	watch, err := provider.Watch(context.Background(), Options{}, func(Position) { count.Add(1) }, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	watch.Stop()
	if count.Load() < 3 {
		t.Fatalf("expected at least 3 fixes, got %d", count.Load())
	}
	settled := count.Load()
	time.Sleep(30 * time.Millisecond)
	if count.Load() != settled {
		t.Fatal("fixes delivered after Stop")
	}
}

func TestWatchReportsErrors(t *testing.T) {
	var errCount atomic.Int64
	provider := &FuncProvider{
		Fix: func(context.Context, Options) (Position, error) {
			return Position{}, errors.New("no satellites")
		},
		Interval: 5 * time.Millisecond,
	}
	watch, err := provider.Watch(context.Background(), Options{}, func(Position) { t.Error("unexpected fix") }, func(error) { errCount.Add(1) })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for errCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	watch.Stop()
	if errCount.Load() == 0 {
		t.Fatal("expected at least one delivered error")
	}
}

func TestWatchStopIsIdempotent(t *testing.T) {
	provider := &StaticProvider{Position: Position{Latitude: 1}}
	watch, err := provider.Watch(context.Background(), Options{}, func(Position) {}, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	watch.Stop()
	watch.Stop()
}
