// Package pipeline runs the ingestion job: fetch deliveries from the remote
// store, expand archives, decode text files, stage the results and persist
// them.
//
// Stages run strictly one after another; within a stage files are handled
// in parallel and independently. Nothing is deleted until the next link in
// the chain has succeeded: a remote file only after its local copy exists,
// an archive only after it expanded, a raw text file and its staged
// artifact only after the database committed its records. Whatever a run
// leaves behind is picked up by the next one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/txtingest/internal/archive"
	"github.com/JonMunkholm/txtingest/internal/core"
	"github.com/JonMunkholm/txtingest/internal/logging"
	"github.com/JonMunkholm/txtingest/internal/staging"
	"github.com/JonMunkholm/txtingest/internal/store"
	"github.com/JonMunkholm/txtingest/internal/transfer"
)

// Store is the persistence side of a run.
type Store interface {
	EnsureSchema(ctx context.Context) error
	BulkInsert(ctx context.Context, art *core.StagedArtifact, at time.Time) (store.Result, error)
	Close()
}

// StoreOpener connects to the store. It is called on entering Persisting,
// and only when there is something to persist.
type StoreOpener func(ctx context.Context) (Store, error)

// Extractor expands archives and knows which files are archives.
type Extractor interface {
	archive.Extractor
	Supports(name string) bool
	DestDir(archive string) string
}

// Options are the run settings.
type Options struct {
	RemotePath     string
	RemoteSuffixes []string
	RawDir         string
	TextSuffixes   []string
	Workers        int
}

// Pipeline holds the collaborators of a run. It is safe to call Run
// repeatedly but not concurrently; Runner enforces that.
type Pipeline struct {
	Transfer  transfer.Client
	Extractor Extractor
	Layouts   *core.LayoutRegistry
	Decoder   *core.Decoder
	Staging   *staging.Dir
	OpenStore StoreOpener
	Options   Options
	Logger    *slog.Logger

	// Now stamps transitions and persisted rows. Defaults to time.Now.
	Now func() time.Time
}

// run is the state of one Run call.
type run struct {
	*Pipeline
	ctx     context.Context
	log     *slog.Logger
	machine *Machine
	tally   *tally
	report  *Report
}

// Run executes one full pass and returns its report. It never returns nil.
func (p *Pipeline) Run(ctx context.Context, trigger string) *Report {
	now := p.now()
	r := &run{
		Pipeline: p,
		ctx:      ctx,
		machine:  NewMachine(p.now),
		tally:    &tally{},
		report: &Report{
			RunID:     uuid.NewString(),
			Trigger:   trigger,
			StartedAt: now,
		},
	}
	r.log = logging.ForRun(p.Logger, r.report.RunID)
	r.log.Info("run started", "trigger", trigger)

	err := r.execute()
	return r.finish(err)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) workers() int {
	if p.Options.Workers < 1 {
		return 1
	}
	return p.Options.Workers
}

// execute walks the states in order. A returned error aborts the run.
func (r *run) execute() error {
	if err := r.enter(Connecting); err != nil {
		return err
	}
	if err := r.remote(); err != nil {
		return err
	}

	if err := r.enter(Extracting); err != nil {
		return err
	}
	r.extract()

	if err := r.enter(Decoding); err != nil {
		return err
	}
	r.decode()

	if err := r.enter(Staging); err != nil {
		return err
	}
	artifacts, err := r.stage()
	if err != nil {
		return err
	}

	if err := r.enter(Persisting); err != nil {
		return err
	}
	if err := r.persist(artifacts); err != nil {
		return err
	}

	return r.enter(Done)
}

// enter moves to s unless the run was cancelled.
func (r *run) enter(s State) error {
	if s != Done {
		if err := r.ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled before %s: %w", s, err)
		}
	}
	if err := r.machine.To(s); err != nil {
		return err
	}
	r.log.Debug("stage entered", "state", s.String())
	return nil
}

func (r *run) finish(err error) *Report {
	rep := r.report
	if err != nil {
		if !r.machine.State().Terminal() {
			_ = r.machine.To(Failed)
		}
		rep.Error = err.Error()
		rep.ErrorCode = core.ErrorCode(err)
	}

	rep.FinishedAt = r.now()
	rep.Final = r.machine.State()
	rep.Transitions = r.machine.History()
	rep.Counts = r.tally.counts
	rep.Failures = append([]FileFailure{}, r.tally.failures...)

	switch {
	case rep.Final == Failed:
		rep.Status = StatusAborted
	case len(rep.Failures) > 0:
		rep.Status = StatusPartial
	default:
		rep.Status = StatusOK
	}

	attrs := []any{
		"status", rep.Status,
		"final_state", rep.Final.String(),
		"duration_ms", rep.Duration().Milliseconds(),
		"transferred", rep.Counts.Transferred,
		"extracted", rep.Counts.Extracted,
		"decoded", rep.Counts.Decoded,
		"persisted", rep.Counts.Persisted,
		"duplicates", rep.Counts.Duplicates,
		"records", rep.Counts.Records,
		"failed_files", len(rep.Failures),
	}
	if err != nil {
		r.log.Error("run aborted", append(attrs, "error", err, "code", rep.ErrorCode)...)
	} else {
		r.log.Info("run finished", attrs...)
	}
	return rep
}

// reportFailure records a per-file failure and logs it.
func (r *run) reportFailure(stage State, file string, err error) {
	f := r.tally.fail(stage, file, err)
	logging.ForFile(r.log, stage.String(), file).Warn("file skipped",
		"kind", string(f.Kind),
		"code", f.Code,
		"error", err,
	)
}

// ---------------------------------------------------------------------------
// Connecting, Listing, Transferring
// ---------------------------------------------------------------------------

// remote covers the three states that need the transfer session. The
// session is closed before local work starts.
func (r *run) remote() error {
	connected := false
	var stageErr error

	err := transfer.WithSession(r.ctx, r.Transfer, func(s transfer.Session) error {
		connected = true

		if stageErr = r.enter(Listing); stageErr != nil {
			return stageErr
		}
		entries, err := s.List(r.ctx, r.Options.RemotePath)
		if err != nil {
			stageErr = fmt.Errorf("list %s: %w", r.Options.RemotePath, err)
			return stageErr
		}
		entries = transfer.FilterSuffix(entries, r.Options.RemoteSuffixes)
		r.tally.add(func(c *Counts) { c.Listed = len(entries) })
		r.log.Info("remote files listed", "path", r.Options.RemotePath, "count", len(entries))

		if stageErr = r.enter(Transferring); stageErr != nil {
			return stageErr
		}
		r.fetchAll(s, entries)
		return nil
	})

	switch {
	case !connected:
		if core.KindOf(err) == "" {
			err = core.NewError(core.KindConnection, "", err)
		}
		return err
	case stageErr != nil:
		return stageErr
	case err != nil:
		// Only closing the session failed; every transfer already settled.
		r.log.Warn("closing transfer session failed", "error", err)
	}
	return nil
}

// fetchAll fetches every entry, deleting the remote copy only after the
// local copy is complete.
func (r *run) fetchAll(s transfer.Session, entries []transfer.Entry) {
	g := new(errgroup.Group)
	g.SetLimit(r.workers())

	for _, e := range entries {
		g.Go(func() error {
			local := filepath.Join(r.Options.RawDir, e.Name)
			log := logging.ForFile(r.log, Transferring.String(), e.Name)

			if err := s.Fetch(r.ctx, e.Path, local); err != nil {
				r.reportFailure(Transferring, e.Name, err)
				return nil
			}
			if err := s.Delete(r.ctx, e.Path); err != nil {
				// The local copy is good; the remote one is fetched again next run.
				r.reportFailure(Transferring, e.Name, core.WithFile(err, e.Name))
			}
			r.tally.add(func(c *Counts) { c.Transferred++ })
			log.Debug("file transferred", "bytes", e.Size)
			return nil
		})
	}
	_ = g.Wait()
}

// ---------------------------------------------------------------------------
// Extracting
// ---------------------------------------------------------------------------

func (r *run) extract() {
	archives, err := discover(r.Options.RawDir, r.Extractor.Supports)
	if err != nil {
		r.reportFailure(Extracting, r.Options.RawDir, core.NewError(core.KindExtraction, "", err))
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers())

	for _, path := range archives {
		g.Go(func() error {
			name := r.rel(path)
			members, err := r.Extractor.Expand(r.ctx, path, r.Extractor.DestDir(path))
			if err != nil {
				r.reportFailure(Extracting, name, err)
				return nil
			}
			if err := os.Remove(path); err != nil {
				r.reportFailure(Extracting, name, core.NewError(core.KindExtraction, name, fmt.Errorf("remove archive: %w", err)))
				return nil
			}
			r.tally.add(func(c *Counts) { c.Extracted++ })
			logging.ForFile(r.log, Extracting.String(), name).Debug("archive expanded", "members", len(members))
			return nil
		})
	}
	_ = g.Wait()
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// decode classifies and decodes every text file and writes its staged
// artifact. Failed files stay where they are.
func (r *run) decode() {
	files, err := discover(r.Options.RawDir, func(name string) bool {
		return hasSuffix(name, r.Options.TextSuffixes)
	})
	if err != nil {
		r.reportFailure(Decoding, r.Options.RawDir, err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers())

	for _, path := range files {
		g.Go(func() error {
			name := r.rel(path)

			layout, err := r.Layouts.Classify(path)
			if err != nil {
				r.reportFailure(Decoding, name, err)
				return nil
			}
			art, err := r.Decoder.DecodeFile(layout, path)
			if err != nil {
				r.reportFailure(Decoding, name, err)
				return nil
			}
			r.tally.add(func(c *Counts) { c.Decoded++ })

			if _, err := r.Staging.Write(name, art); err != nil {
				r.reportFailure(Decoding, name, err)
				return nil
			}
			logging.ForFile(r.log, Decoding.String(), name).Debug("file decoded",
				"layout", layout.ID,
				"records", len(art.Records),
			)
			return nil
		})
	}
	_ = g.Wait()
}

// ---------------------------------------------------------------------------
// Staging
// ---------------------------------------------------------------------------

// stage collects every artifact waiting in the processed directory,
// including those left by earlier runs.
func (r *run) stage() ([]string, error) {
	if n, err := r.Staging.CleanTemp(); err != nil {
		r.log.Warn("cleaning staging temp files failed", "error", err)
	} else if n > 0 {
		r.log.Info("removed incomplete staged artifacts", "count", n)
	}

	paths, err := r.Staging.List()
	if err != nil {
		return nil, core.NewError(core.KindPersistence, "", err)
	}
	r.tally.add(func(c *Counts) { c.Staged = len(paths) })
	r.log.Info("artifacts staged", "count", len(paths))
	return paths, nil
}

// ---------------------------------------------------------------------------
// Persisting
// ---------------------------------------------------------------------------

// persist writes artifacts one transaction each. The first store failure
// aborts the run; everything not yet persisted stays on disk.
func (r *run) persist(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	st, err := r.OpenStore(r.ctx)
	if err != nil {
		return asPersistence(err)
	}
	defer st.Close()

	if err := st.EnsureSchema(r.ctx); err != nil {
		return asPersistence(err)
	}

	for _, path := range paths {
		if err := r.ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled while persisting: %w", err)
		}

		art, err := staging.Read(path)
		if err != nil {
			// Set aside rather than deleted: its raw file may already be gone.
			// If the raw file is still there, the next run stages it again.
			r.reportFailure(Persisting, filepath.Base(path), err)
			if bad, qErr := staging.Quarantine(path); qErr != nil {
				r.log.Warn("quarantining damaged artifact failed", "file", path, "error", qErr)
			} else {
				r.log.Warn("damaged artifact set aside", "file", bad)
			}
			continue
		}

		res, err := st.BulkInsert(r.ctx, art, r.now())
		if err != nil {
			return core.WithFile(asPersistence(err), art.Source)
		}

		r.tally.add(func(c *Counts) {
			c.Persisted++
			c.Records += res.Inserted
			if res.Duplicate {
				c.Duplicates++
			}
		})

		log := logging.ForFile(r.log, Persisting.String(), art.Source)
		if err := r.cleanup(art, path); err != nil {
			log.Warn("cleanup after persist failed", "error", err)
		}
		log.Debug("file persisted", "records", res.Inserted, "duplicate", res.Duplicate)
	}

	pruneEmptyDirs(r.Options.RawDir)
	return nil
}

// cleanup deletes the raw text file, then its artifact.
func (r *run) cleanup(art *core.StagedArtifact, artifactPath string) error {
	var errs []error
	if art.SourcePath != "" {
		if err := os.Remove(art.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove raw file: %w", err))
		}
	}
	if err := staging.Remove(artifactPath); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func asPersistence(err error) error {
	if core.KindOf(err) != "" {
		return err
	}
	return core.NewError(core.KindPersistence, "", err)
}

// rel names path relative to the raw directory for reports and logs.
func (r *run) rel(path string) string {
	if rel, err := filepath.Rel(r.Options.RawDir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(path)
}
