package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/talgya/realm-market/internal/snapshot"
)

func sampleSnapshot() *snapshot.Snapshot {
	desc := "Fishing boom"
	return &snapshot.Snapshot{
		Day: 12,
		Market: map[string]map[string]snapshot.PricePoint{
			"Mirehold": {
				"herring": {CurrentPrice: 0.036, History: []float64{0.04, 0.036}},
				"woad":    {CurrentPrice: 2.85, History: []float64{3, 2.85}},
			},
			"Solara": {
				"pepper": {CurrentPrice: 1.5, History: []float64{1.5}},
			},
		},
		LastEvents: map[string]*string{"Mirehold": &desc, "Solara": nil},
		EventHistory: []snapshot.EventRecord{
			{
				ID:          "a1",
				Timestamp:   snapshot.Timestamp{Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
				Region:      "Mirehold",
				Description: desc,
				Effects:     map[string]float64{"herring": -0.1, "woad": -0.05},
			},
		},
	}
}

func checkSnapshot(t *testing.T, got *snapshot.Snapshot) {
	t.Helper()
	want := sampleSnapshot()

	if got.Day != want.Day {
		t.Errorf("day = %d, want %d", got.Day, want.Day)
	}
	for region, cells := range want.Market {
		for name, pp := range cells {
			g := got.Market[region][name]
			if g.CurrentPrice != pp.CurrentPrice || len(g.History) != len(pp.History) {
				t.Errorf("%s/%s = %+v, want %+v", region, name, g, pp)
			}
		}
	}
	if d := got.LastEvents["Mirehold"]; d == nil || *d != "Fishing boom" {
		t.Errorf("Mirehold last event = %v", d)
	}
	if d, ok := got.LastEvents["Solara"]; !ok || d != nil {
		t.Errorf("Solara last event = %v, %v", d, ok)
	}
	if len(got.EventHistory) != 1 {
		t.Fatalf("event history = %+v", got.EventHistory)
	}
	e := got.EventHistory[0]
	if e.ID != "a1" || !e.Timestamp.Equal(want.EventHistory[0].Timestamp.Time) || e.Effects["woad"] != -0.05 {
		t.Errorf("event = %+v", e)
	}
}

func TestStoresRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sqlite, err := OpenSQLite(filepath.Join(dir, "market.db"))
	if err != nil {
		t.Fatal(err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(dir, "market.json")),
		"zstd":   NewFileStore(filepath.Join(dir, "nested", "market.json.zst")),
		"sqlite": sqlite,
		"s3":     NewS3Store(newFakeS3(), "bucket", ""),
	}

	ctx := context.Background()
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			if _, err := store.Load(ctx); !errors.Is(err, snapshot.ErrNotFound) {
				t.Fatalf("empty load err = %v, want ErrNotFound", err)
			}
			if err := store.Save(ctx, sampleSnapshot()); err != nil {
				t.Fatalf("save: %v", err)
			}
			// Second save replaces the first.
			if err := store.Save(ctx, sampleSnapshot()); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			checkSnapshot(t, got)
		})
	}
}

func TestFileStoreCompresses(t *testing.T) {
	dir := t.TempDir()
	plain := NewFileStore(filepath.Join(dir, "a.json"))
	packed := NewFileStore(filepath.Join(dir, "a.json.zst"))

	ctx := context.Background()
	for _, s := range []*FileStore{plain, packed} {
		if err := s.Save(ctx, sampleSnapshot()); err != nil {
			t.Fatal(err)
		}
	}

	raw, _ := os.ReadFile(plain.Path)
	zst, _ := os.ReadFile(packed.Path)
	if !bytes.HasPrefix(raw, []byte("{")) {
		t.Errorf("plain file does not start with JSON: %q", raw[:10])
	}
	if bytes.HasPrefix(zst, []byte("{")) {
		t.Error("zstd file looks like plain JSON")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "market.json")
	if err := os.WriteFile(path, []byte(`{"market": {"Solara": 7}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	if err == nil || errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("err = %v, want validation error", err)
	}

	mem := NewMemoryStore()
	mem.SetRaw([]byte("not json"))
	if _, err := mem.Load(context.Background()); err == nil {
		t.Fatal("memory store accepted garbage")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{cfg: Config{Backend: "memory"}, want: "*persistence.MemoryStore"},
		{cfg: Config{Path: filepath.Join(dir, "m.json")}, want: "*persistence.FileStore"},
		{cfg: Config{Backend: "SQLite", Path: filepath.Join(dir, "m.db")}, want: "*persistence.SQLiteStore"},
		{cfg: Config{Backend: "file"}, wantErr: true},
		{cfg: Config{Backend: "sqlite"}, wantErr: true},
		{cfg: Config{Backend: "s3"}, wantErr: true},
		{cfg: Config{Backend: "tape"}, wantErr: true},
	}
	for _, tt := range tests {
		store, err := Open(ctx, tt.cfg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Open(%+v) succeeded, want error", tt.cfg)
			}
			continue
		}
		if err != nil {
			t.Errorf("Open(%+v): %v", tt.cfg, err)
			continue
		}
		if got := fmt.Sprintf("%T", store); got != tt.want {
			t.Errorf("Open(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
		store.Close()
	}
}

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[*in.Bucket+"/"+*in.Key] = body
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3StoreUsesKey(t *testing.T) {
	client := newFakeS3()
	store := NewS3Store(client, "archive", "")
	if err := store.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	if _, ok := client.objects["archive/"+DefaultS3Key]; !ok {
		t.Fatalf("objects = %v", client.objects)
	}
}
