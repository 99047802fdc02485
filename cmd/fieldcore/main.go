// Command fieldcore is the field data-collection CLI: it records specimens
// and safety checkpoints into the local store, lists and filters them, and
// exports them as JSON through the configured blob backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"fieldcore/internal/adapters/export"
	"fieldcore/internal/core"
	"fieldcore/internal/infra/blob"
	"fieldcore/internal/validation"
	"fieldcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(errOut io.Writer) {
	fmt.Fprintln(errOut, "usage: fieldcore <command> [flags]")
	fmt.Fprintln(errOut, "")
	fmt.Fprintln(errOut, "commands:")
	fmt.Fprintln(errOut, "  collect     record a new specimen")
	fmt.Fprintln(errOut, "  list        list specimens, newest first")
	fmt.Fprintln(errOut, "  export      export specimens as JSON")
	fmt.Fprintln(errOut, "  checkpoint  record a safety checkpoint")
	fmt.Fprintln(errOut, "  custody     append a chain-of-custody entry")
}

func run(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		usage(errOut)
		return 2
	}
	var err error
	switch args[0] {
	case "collect":
		err = runCollect(args[1:], out, errOut)
	case "list":
		err = runList(args[1:], out, errOut)
	case "export":
		err = runExport(args[1:], out, errOut)
	case "checkpoint":
		err = runCheckpoint(args[1:], out, errOut)
	case "custody":
		err = runCustody(args[1:], out, errOut)
	case "-h", "--help", "help":
		usage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command %q\n", args[0])
		usage(errOut)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "fieldcore: %v\n", err)
		return 1
	}
	return 0
}

func openService() (*core.Service, func(), error) {
	store, err := core.OpenSpecimenStore()
	if err != nil {
		return nil, nil, err
	}
	svc := core.NewService(store, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("fieldcore_cli")))
	return svc, func() { _ = store.Close() }, nil
}

// parseCoordinate accepts locale-formatted input ("40,71" as well as "40.71")
// by running it through the field autocorrector before use.
func parseCoordinate(field, raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	corrected := validation.AutoCorrect(map[string]any{field: raw})
	value, ok := corrected[field].(float64)
	if !ok || value != value { // NaN signals an unparsable coordinate
		return nil, fmt.Errorf("invalid %s %q", field, raw)
	}
	return &value, nil
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func runCollect(args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	commonName := fs.String("common-name", "", "common name (required)")
	scientificName := fs.String("scientific-name", "", "scientific name")
	description := fs.String("description", "", "free-form description")
	lat := fs.String("lat", "", "latitude in decimal degrees")
	lon := fs.String("lon", "", "longitude in decimal degrees")
	locationDesc := fs.String("location", "", "location description")
	habitat := fs.String("habitat", "", "habitat")
	aspect := fs.String("aspect", "", "slope aspect (N, NE, E, SE, S, SW, W, NW)")
	soil := fs.String("soil", "", "soil type")
	collectedBy := fs.String("collected-by", "", "collector (required)")
	notes := fs.String("notes", "", "notes")
	var tags stringList
	fs.Var(&tags, "tag", "tag (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	latitude, err := parseCoordinate("latitude", *lat)
	if err != nil {
		return err
	}
	longitude, err := parseCoordinate("longitude", *lon)
	if err != nil {
		return err
	}

	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	spec, err := svc.CreateSpecimen(context.Background(), core.SpecimenForm{
		CommonName:          *commonName,
		ScientificName:      *scientificName,
		Description:         *description,
		Latitude:            latitude,
		Longitude:           longitude,
		LocationDescription: *locationDesc,
		Habitat:             *habitat,
		Aspect:              *aspect,
		SoilType:            *soil,
		CollectedBy:         *collectedBy,
		Notes:               *notes,
		Tags:                tags,
	})
	var verr core.ValidationError
	if errors.As(err, &verr) {
		fields := make([]string, 0, len(verr.Fields))
		for field := range verr.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			for _, msg := range verr.Fields[field] {
				fmt.Fprintf(errOut, "  %s: %s\n", field, msg)
			}
		}
		return errors.New("specimen rejected")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "recorded %s (%s)\n", spec.SpecimenNumber, spec.ID)
	return nil
}

func runList(args []string, out, _ io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	search := fs.String("search", "", "match number, names, or collector")
	tag := fs.String("tag", "", "require an exact tag")
	syncStatus := fs.String("sync-status", "", "pending|synced|error")
	asJSON := fs.Bool("json", false, "print records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	specimens, err := svc.FilterSpecimens(context.Background(), core.SpecimenFilter{
		Search:     *search,
		Tag:        *tag,
		SyncStatus: domain.SyncStatus(*syncStatus),
	})
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(specimens)
	}
	for _, sp := range specimens {
		name := ""
		if sp.CommonName != nil {
			name = *sp.CommonName
		}
		fmt.Fprintf(out, "%s  %-24s  %s  %s\n", sp.SpecimenNumber, name, sp.CollectedDate.Format("2006-01-02"), sp.SyncStatus)
	}
	fmt.Fprintf(out, "%d specimen(s)\n", len(specimens))
	return nil
}

func runExport(args []string, out, _ io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	search := fs.String("search", "", "match number, names, or collector")
	toStdout := fs.Bool("stdout", false, "write JSON to stdout instead of the blob store")
	prefix := fs.String("prefix", "", "object key prefix, e.g. exports/")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	filter := core.SpecimenFilter{Search: *search}

	if *toStdout {
		worker := export.NewWorker(svc, nil, nil)
		count, err := worker.ExportTo(ctx, out, filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d specimen(s) exported\n", count)
		return nil
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	worker := export.NewWorker(svc, blobs, nil)
	worker.Start()
	defer func() { _ = worker.Stop(ctx) }()

	record, err := worker.Enqueue(ctx, export.Input{Filter: filter, Prefix: *prefix})
	if err != nil {
		return err
	}
	record, err = waitForExport(worker, record.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d specimen(s) to %s (%d bytes)\n", record.RecordCount, record.Key, record.SizeBytes)
	return nil
}

func waitForExport(worker *export.Worker, id string) (export.Record, error) {
	deadline := time.Now().Add(time.Minute)
	for time.Now().Before(deadline) {
		record, ok := worker.Get(id)
		if ok {
			switch record.Status {
			case export.StatusSucceeded:
				return record, nil
			case export.StatusFailed:
				return export.Record{}, fmt.Errorf("export failed: %s", record.Error)
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	return export.Record{}, errors.New("export timed out")
}

func runCheckpoint(args []string, out, _ io.Writer) error {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	user := fs.String("user", "", "user id (required)")
	status := fs.String("status", string(domain.CheckpointOK), "ok|alert|emergency")
	lat := fs.String("lat", "", "latitude in decimal degrees")
	lon := fs.String("lon", "", "longitude in decimal degrees")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	latitude, err := parseCoordinate("latitude", *lat)
	if err != nil {
		return err
	}
	longitude, err := parseCoordinate("longitude", *lon)
	if err != nil {
		return err
	}

	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	cp, err := svc.RecordCheckpoint(context.Background(), core.CheckpointForm{
		UserID:    *user,
		Status:    domain.CheckpointStatus(*status),
		Latitude:  latitude,
		Longitude: longitude,
		Notes:     *notes,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "checkpoint %s recorded at %s\n", cp.Status, cp.Timestamp.Format(time.RFC3339))
	return nil
}

func runCustody(args []string, out, _ io.Writer) error {
	fs := flag.NewFlagSet("custody", flag.ContinueOnError)
	id := fs.String("id", "", "specimen id (required)")
	action := fs.String("action", string(domain.CustodyTransferred), "collected|transferred|processed|stored|analyzed")
	handler := fs.String("handler", "", "person taking custody (required)")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("specimen id required")
	}

	svc, closeStore, err := openService()
	if err != nil {
		return err
	}
	defer closeStore()

	spec, err := svc.AppendCustodyEntry(context.Background(), *id, domain.CustodyAction(*action), *handler, *notes, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s now has %d custody entries\n", spec.SpecimenNumber, len(spec.ChainOfCustody))
	return nil
}
