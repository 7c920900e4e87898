package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/jobwatch/internal/sites"
)

type failingBlobs struct {
	getErr error
	putErr error
	puts   int
}

func (f *failingBlobs) GetBlob(context.Context, string) ([]byte, error) { return nil, f.getErr }
func (f *failingBlobs) PutBlob(context.Context, string, []byte) error {
	f.puts++
	return f.putErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshots_LoadEmpty(t *testing.T) {
	snap := NewSnapshots(openTestStore(t))

	got := snap.Load(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("Load on empty store = %#v, want empty non-nil slice", got)
	}
}

func TestSnapshots_RoundTrip(t *testing.T) {
	snap := NewSnapshots(openTestStore(t))
	ctx := context.Background()

	scanned := sites.New("Acme", "https://acme.test/careers", "go")
	scanned.BeginScan()
	scanned.Succeed(sites.ScanResult{
		Text:    "- Go Engineer",
		Sources: []sites.Source{{Title: "Acme careers", URI: "https://acme.test/careers"}},
	}, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC))

	want := []sites.Entry{sites.New("Beta", "https://beta.test", ""), scanned}
	snap.Save(ctx, want)

	got := snap.Load(ctx)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load after Save:\n got %#v\nwant %#v", got, want)
	}
}

func TestSnapshots_LoadMalformed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.PutBlob(ctx, RegistryKey, []byte("{broken")); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	var logs bytes.Buffer
	snap := NewSnapshots(store).WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	got := snap.Load(ctx)
	if len(got) != 0 {
		t.Errorf("Load = %d entries, want 0", len(got))
	}
	if !strings.Contains(logs.String(), "failed to parse saved sites") {
		t.Errorf("expected parse warning in logs, got %q", logs.String())
	}
}

func TestSnapshots_LoadReadError(t *testing.T) {
	snap := NewSnapshots(&failingBlobs{getErr: errors.New("disk gone")}).WithLogger(quietLogger())

	if got := snap.Load(context.Background()); len(got) != 0 {
		t.Errorf("Load = %d entries, want 0", len(got))
	}
}

func TestSnapshots_SaveErrorIsSwallowed(t *testing.T) {
	blobs := &failingBlobs{putErr: errors.New("read-only")}
	snap := NewSnapshots(blobs).WithLogger(quietLogger())

	snap.Save(context.Background(), []sites.Entry{sites.New("A", "https://a.test", "")})
	if blobs.puts != 1 {
		t.Errorf("puts = %d, want 1", blobs.puts)
	}
}
