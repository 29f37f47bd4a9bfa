package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	natsadapter "github.com/aitzolm/basomap/internal/adapters/nats"
	"github.com/aitzolm/basomap/internal/adapters/postgres"
	"github.com/aitzolm/basomap/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source   string         `json:"source"`
	Datasets []DatasetEntry `json:"datasets"`
}

type DatasetEntry struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`  // remote source
	Path   string `json:"path,omitempty"` // local file, wins over URL
	Format string `json:"format"`         // "csv" | "json"
}

// batchSize bounds memory per flush; field exports run to hundreds of
// thousands of rows.
const batchSize = 500

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("basomap-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	repo := postgres.NewInventoryRepo(db)

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	log.Printf("Basomap Inventory Ingestor — %d datasets from %s", len(manifest.Datasets), manifest.Source)

	// Filter datasets (optional CLI arg: name list)
	nameFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			nameFilter[strings.TrimSpace(s)] = true
		}
	}

	client := &http.Client{Timeout: 120 * time.Second}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent downloads
	var totalMu sync.Mutex
	total := 0

	for _, ds := range manifest.Datasets {
		if len(nameFilter) > 0 && !nameFilter[ds.Name] {
			continue
		}

		wg.Add(1)
		go func(d DatasetEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			n, err := ingestDataset(ctx, repo, client, d)
			if err != nil {
				log.Printf("ERROR [%s]: %v", d.Name, err)
				return
			}
			totalMu.Lock()
			total += n
			totalMu.Unlock()
			log.Printf("OK [%s]: %d records", d.Name, n)
		}(ds)
	}

	wg.Wait()

	// Tell running viewers their working set is out of date
	if publisher, err := natsadapter.NewPublisher(cfg.NATS.URL); err == nil {
		_ = publisher.PublishDatasetRefreshed(ctx, total)
		publisher.Close()
	} else {
		log.Printf("nats unavailable, viewers will refresh on next load: %v", err)
	}

	log.Printf("ingestion complete: %d records", total)
}

// ---------------------------------------------------------------------------
// Per-dataset ingestion
// ---------------------------------------------------------------------------

func ingestDataset(ctx context.Context, repo *postgres.InventoryRepo, client *http.Client, d DatasetEntry) (int, error) {
	rc, err := openDataset(ctx, client, d)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	switch strings.ToLower(d.Format) {
	case "csv":
		return ingestCSV(ctx, repo, rc)
	case "json":
		return ingestJSON(ctx, repo, rc)
	default:
		return 0, fmt.Errorf("unknown format %q", d.Format)
	}
}

func openDataset(ctx context.Context, client *http.Client, d DatasetEntry) (io.ReadCloser, error) {
	if d.Path != "" {
		return os.Open(d.Path)
	}
	if d.URL == "" {
		return nil, fmt.Errorf("dataset %s has neither path nor url", d.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", d.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: HTTP %d", d.URL, resp.StatusCode)
	}
	return resp.Body, nil
}

// ingestCSV reads id,lat,lon,species,diameter_cm,height_m,volume_m3
// rows. Column order is taken from the header; unknown columns are
// ignored. Rows are stored as raw JSON documents, the same shape the
// field clients upload.
func ingestCSV(ctx context.Context, repo *postgres.InventoryRepo, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)

	var ids []string
	var payloads [][]byte
	count := 0

	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		if err := repo.InsertBatch(ctx, ids, payloads); err != nil {
			return err
		}
		count += len(ids)
		ids = ids[:0]
		payloads = payloads[:0]
		return nil
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read row: %w", err)
		}

		doc := map[string]interface{}{}
		id := getField(row, cols, "id")
		if id != "" {
			doc["id"] = id
		}
		for _, numCol := range []string{"lat", "lon", "diameter_cm", "height_m", "volume_m3"} {
			if s := getField(row, cols, numCol); s != "" {
				if v, err := strconv.ParseFloat(s, 64); err == nil {
					key := numCol
					if key == "lon" {
						key = "lng" // client wire name
					}
					doc[key] = v
				}
			}
		}
		if s := getField(row, cols, "species"); s != "" {
			doc["species"] = s
		}

		if id == "" {
			// Keyless rows get a positional key; the normalizer
			// synthesizes the display id from coordinates later.
			id = fmt.Sprintf("row-%d", count+len(ids))
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			return count, err
		}
		ids = append(ids, id)
		payloads = append(payloads, payload)

		if len(ids) >= batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}

	if err := flush(); err != nil {
		return count, err
	}
	return count, nil
}

// ingestJSON reads a JSON array of raw record documents.
func ingestJSON(ctx context.Context, repo *postgres.InventoryRepo, r io.Reader) (int, error) {
	var docs []json.RawMessage
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return 0, fmt.Errorf("decode json: %w", err)
	}

	var ids []string
	var payloads [][]byte
	count := 0

	for i, doc := range docs {
		var probe struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(doc, &probe)
		id := probe.ID
		if id == "" {
			id = fmt.Sprintf("doc-%d", i)
		}

		ids = append(ids, id)
		payloads = append(payloads, doc)

		if len(ids) >= batchSize {
			if err := repo.InsertBatch(ctx, ids, payloads); err != nil {
				return count, err
			}
			count += len(ids)
			ids = ids[:0]
			payloads = payloads[:0]
		}
	}

	if len(ids) > 0 {
		if err := repo.InsertBatch(ctx, ids, payloads); err != nil {
			return count, err
		}
		count += len(ids)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func indexColumns(header []string) map[string]int {
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func getField(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
