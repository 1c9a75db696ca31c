// Command simulate replays a JSON scenario of parcels, users and
// subscriptions through the real pipeline and alert dispatcher, using the
// in-memory store and scripted vision replies. SMS texts carry the
// simulation marker.
//
// Usage:
//
//	go run ./cmd/simulate -fixture data/simulation/fixture.json
//	go run ./cmd/simulate -fixture data/simulation/fixture.json -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/couchcryptid/coastal-risk-service/internal/adapter/memstore"
	"github.com/couchcryptid/coastal-risk-service/internal/alert"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/couchcryptid/coastal-risk-service/internal/pipeline"
	"github.com/couchcryptid/coastal-risk-service/internal/risk"
	"github.com/jonboulle/clockwork"
)

func main() {
	fixturePath := flag.String("fixture", "data/simulation/fixture.json", "path to the simulation fixture")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	verbose := flag.Bool("v", false, "log pipeline and dispatch activity to stderr")
	flag.Parse()

	level := slog.LevelError
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	f, err := loadFixture(*fixturePath)
	if err != nil {
		log.Fatal(err)
	}
	rep, err := simulate(context.Background(), f, logger)
	if err != nil {
		log.Fatal(err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatal(err)
		}
		return
	}
	rep.print(os.Stdout)
}

// report is what one simulation produced.
type report struct {
	Runs   []runReport                  `json:"runs"`
	Alerts []alert.Outcome              `json:"dispatch"`
	Emails int                          `json:"emails"`
	Inbox  map[string][]alert.InboxItem `json:"inbox"`
}

type runReport struct {
	ParcelID  string      `json:"parcelId"`
	Location  string      `json:"location"`
	Completed int         `json:"modulesCompleted"`
	Success   bool        `json:"success"`
	RiskScore int         `json:"riskScore,omitempty"`
	Band      domain.Band `json:"band,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
}

func simulate(ctx context.Context, f fixture, logger *slog.Logger) (report, error) {
	clock := clockwork.NewFakeClockAt(f.Now)
	metrics := observability.NewMetricsForTesting()
	catalog, err := i18n.NewCatalog()
	if err != nil {
		return report{}, err
	}

	store := memstore.New(clock)
	f.seed(store)

	scripted := newScriptedVision(f.Parcels)
	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Store:     store,
		Engine:    risk.NewEngine(domain.DefaultRiskModel(), catalog, nil, 0, logger, metrics),
		Images:    scriptedImages{},
		Vision:    scripted,
		Greenness: scripted,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	}, pipeline.Settings{
		Vegetation:           domain.DefaultVegetationModel(),
		Vulnerability:        domain.DefaultVulnerabilityWeights(),
		DefaultTimeWindowHrs: f.TimeWindowHrs,
	})

	mailer := &recordingMailer{}
	policy := alert.DefaultPolicy()
	policy.Simulation = true
	dispatcher := alert.NewDispatcher(alert.Deps{
		Store:   store,
		Catalog: catalog,
		Mailer:  mailer,
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
	}, policy)

	rep := report{Inbox: make(map[string][]alert.InboxItem)}
	var sources []domain.RiskEvent
	for _, p := range f.Parcels {
		res, err := orchestrator.Run(ctx, p.ID, pipeline.Options{TimeWindowHrs: f.TimeWindowHrs})
		run := runReport{
			ParcelID:  p.ID,
			Location:  p.Location(),
			Completed: res.Completed(),
			Success:   res.Success,
			Errors:    res.Errors,
		}
		if err != nil && len(run.Errors) == 0 {
			run.Errors = []string{err.Error()}
		}
		if res.Event != nil {
			run.RiskScore = res.Event.RiskScore
			run.Band = res.Event.Band
			sources = append(sources, *res.Event)
		}
		rep.Runs = append(rep.Runs, run)
	}

	for _, src := range sources {
		out, err := dispatcher.DispatchEvent(ctx, src)
		if err != nil {
			return report{}, fmt.Errorf("dispatch %s: %w", src.ID, err)
		}
		rep.Alerts = append(rep.Alerts, out)
	}
	rep.Emails = len(mailer.sent)

	inbox := alert.NewInbox(store, clock, policy.Location)
	for _, u := range f.Users {
		items, err := inbox.List(ctx, u.UserID, 0)
		if err != nil {
			return report{}, fmt.Errorf("inbox %s: %w", u.UserID, err)
		}
		rep.Inbox[u.UserID] = items
	}
	return rep, nil
}

func (r report) print(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARCEL\tLOCATION\tMODULES\tSCORE\tBAND\tERRORS")
	for _, run := range r.Runs {
		fmt.Fprintf(w, "%s\t%s\t%d/4\t%d\t%s\t%d\n", run.ParcelID, run.Location, run.Completed, run.RiskScore, run.Band, len(run.Errors))
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	generated := 0
	for _, o := range r.Alerts {
		generated += len(o.Generated)
		if o.Skipped != "" {
			fmt.Fprintf(out, "%s (%s): skipped, %s\n", o.ParcelID, o.Band, o.Skipped)
			continue
		}
		fmt.Fprintf(out, "%s (%s): %d alert(s)\n", o.ParcelID, o.Band, len(o.Generated))
	}
	fmt.Fprintf(out, "generated %d user alert(s), %d email(s)\n\n", generated, r.Emails)

	for _, userID := range slices.Sorted(maps.Keys(r.Inbox)) {
		for _, item := range r.Inbox[userID] {
			fmt.Fprintf(out, "[%s] %s\n", userID, item.SMSShort)
		}
	}
}
