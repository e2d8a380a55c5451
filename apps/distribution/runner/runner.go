// Package runner executes one distribution run: database retention,
// bundling, assembly, publishing and object store retention, guarded by a
// run lock so that runs never overlap.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quatton/expodist/apps/distribution/config"
	"github.com/quatton/expodist/pkg/assembly"
	"github.com/quatton/expodist/pkg/buckets"
	"github.com/quatton/expodist/pkg/bundler"
	"github.com/quatton/expodist/pkg/db"
	"github.com/quatton/expodist/pkg/db/models"
	"github.com/quatton/expodist/pkg/dlog"
	"github.com/quatton/expodist/pkg/export"
	"github.com/quatton/expodist/pkg/kv"
	"github.com/quatton/expodist/pkg/objectstore"
	"github.com/quatton/expodist/pkg/signing"
	"github.com/quatton/expodist/pkg/structure"
	"github.com/quatton/expodist/pkg/xerr"
)

// Records loads submissions from the database.
type Records interface {
	DiagnosisKeys(ctx context.Context, since buckets.Hour) ([]models.DiagnosisKey, error)
	TraceWarnings(ctx context.Context, since buckets.Hour) ([]models.TraceTimeIntervalWarning, error)
	CheckInReports(ctx context.Context, since buckets.Hour) ([]models.CheckInProtectedReport, error)
}

// RecordRetention removes expired submissions from the database.
type RecordRetention interface {
	ApplyRetention(ctx context.Context, th db.Thresholds) (db.RetentionResult, error)
}

// Deps are the collaborators of a Runner. State holds the run lock and the
// shift anchors between runs. Retention and State may be nil, which skips
// database retention, locking and anchoring.
type Deps struct {
	Records   Records
	Retention RecordRetention
	State     kv.Store
	Client    objectstore.Client
	Signer    assembly.Signer
	Clock     func() time.Time
}

// Report describes a finished run.
type Report struct {
	ID          string             `json:"id"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
	AsOf        buckets.Hour       `json:"asOf"`
	Keys        int                `json:"keys"`
	Warnings    int                `json:"warnings"`
	Reports     int                `json:"reports"`
	DBRetention db.RetentionResult `json:"dbRetention"`
	Published   objectstore.Result `json:"published"`
	Deleted     int                `json:"deleted"`
	// ShiftAnchors are stored for the next run once publishing succeeded.
	ShiftAnchors map[string]buckets.Hour `json:"shiftAnchors,omitempty"`
	Error        string                  `json:"error,omitempty"`
	ErrorCode    xerr.Code               `json:"errorCode,omitempty"`
}

type Runner struct {
	cfg  *config.EnvConfig
	deps Deps

	mu   sync.Mutex
	last *Report
}

func New(cfg *config.EnvConfig, deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Last returns the report of the most recent run.
func (r *Runner) Last() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// Run performs a full distribution run. It returns an xerr coded error; the
// report is filled as far as the run got.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	now := r.deps.Clock().UTC()
	report := Report{ID: uuid.NewString(), StartedAt: now, AsOf: buckets.HourOf(now)}

	logger := dlog.FromContext(ctx).With("run", report.ID)
	ctx = dlog.WithContext(ctx, logger)

	err := r.run(ctx, now, &report)

	report.FinishedAt = r.deps.Clock().UTC()
	if err != nil {
		report.Error = err.Error()
		report.ErrorCode = xerr.CodeOf(err)
		logger.Error("Distribution run failed", "code", report.ErrorCode, "error", err)
	} else {
		logger.Info("Distribution run finished",
			"uploaded", report.Published.Uploaded, "deleted", report.Deleted,
			"took", report.FinishedAt.Sub(report.StartedAt))
	}

	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()
	return report, err
}

func (r *Runner) run(ctx context.Context, now time.Time, report *Report) error {
	if r.deps.State != nil {
		lock, err := kv.Acquire(ctx, r.deps.State, r.cfg.LockKey, r.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, kv.ErrLocked) {
				return xerr.New(xerr.CodeLocked, err)
			}
			return err
		}
		defer func() {
			if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				dlog.FromContext(ctx).Warn("Releasing run lock failed", "error", rerr)
			}
		}()
	}

	anchors, err := r.loadAnchors(ctx)
	if err != nil {
		return xerr.New(xerr.CodeState, err)
	}

	if r.deps.Retention != nil {
		res, err := r.applyDBRetention(ctx, now, anchors)
		if err != nil {
			return xerr.New(xerr.CodeRetention, err)
		}
		report.DBRetention = res
	}

	root, err := r.assemble(ctx, now, anchors, report)
	if err != nil {
		return err
	}
	if err := r.write(root); err != nil {
		return xerr.New(xerr.CodeAssembly, err)
	}

	counter := objectstore.NewFailedOperationsCounter(r.cfg.ObjectStore.MaxFailedOperations)

	published, err := r.Publish(ctx, counter)
	report.Published = published
	if err != nil {
		return err
	}
	if err := r.saveAnchors(ctx, report.ShiftAnchors); err != nil {
		return xerr.New(xerr.CodeState, err)
	}

	deleted, err := r.ApplyObjectRetention(ctx, now, counter)
	report.Deleted = len(deleted)
	return err
}

// Assemble loads and bundles the records of the distribution window and
// returns the prepared tree. report may be nil.
func (r *Runner) Assemble(ctx context.Context, now time.Time, report *Report) (*assembly.Directory, error) {
	anchors, err := r.loadAnchors(ctx)
	if err != nil {
		return nil, xerr.New(xerr.CodeState, err)
	}
	return r.assemble(ctx, now, anchors, report)
}

func (r *Runner) assemble(ctx context.Context, now time.Time, anchors map[string]buckets.Hour, report *Report) (*assembly.Directory, error) {
	logger := dlog.FromContext(ctx)
	window := r.window(now)

	keys, err := r.deps.Records.DiagnosisKeys(ctx, r.keysSince(now, anchors))
	if err != nil {
		return nil, xerr.New(xerr.CodeBundle, err)
	}
	warnings, err := r.deps.Records.TraceWarnings(ctx, window)
	if err != nil {
		return nil, xerr.New(xerr.CodeBundle, err)
	}
	reports, err := r.deps.Records.CheckInReports(ctx, window)
	if err != nil {
		return nil, xerr.New(xerr.CodeBundle, err)
	}
	logger.Info("Loaded submissions", "keys", len(keys), "warnings", len(warnings), "reports", len(reports))

	keyOpts := r.KeyOptions()
	keyOpts.ShiftAnchors = anchors
	keyBundler := bundler.NewDiagnosisKeyBundler(keyOpts)
	if err := keyBundler.Bundle(ctx, keys, now); err != nil {
		return nil, xerr.New(xerr.CodeBundle, err)
	}
	warningBundler := bundler.NewTraceWarningBundler(r.bundleOptions(), r.cfg.OriginCountry)
	if err := warningBundler.Bundle(ctx, warnings, now); err != nil {
		return nil, xerr.New(xerr.CodeBundle, err)
	}
	reportBundler := bundler.NewCheckInReportBundler(r.bundleOptions(), r.cfg.OriginCountry)
	if err := reportBundler.Bundle(ctx, reports, now); err != nil {
		return nil, xerr.New(xerr.CodeBundle, err)
	}
	if report != nil {
		report.Keys, report.Warnings, report.Reports = len(keys), len(warnings), len(reports)
		report.ShiftAnchors = keyBundler.ShiftAnchors()
	}

	cfg := r.StructureConfig()
	builder := structure.NewBuilder(cfg, r.deps.Signer, signing.SignatureListEncoder(cfg.SignatureInfo))
	root, err := builder.Build(keyBundler, warningBundler, reportBundler)
	if err != nil {
		return nil, xerr.New(xerr.CodeAssembly, err)
	}
	if err := root.Prepare(assembly.IndexStack{}); err != nil {
		return nil, xerr.New(xerr.CodeAssembly, err)
	}
	logger.Info("Assembled distribution tree", "packages", len(keyBundler.Packages()))
	return root, nil
}

func (r *Runner) window(now time.Time) buckets.Hour {
	return buckets.HourOf(now) - buckets.Hour(r.cfg.RetentionDays*24)
}

// keysSince is the oldest submission hour loaded for bundling. It covers keys
// whose distribution hour the expiry policy moves into the window, and keys
// at or after a shift anchor before the window.
func (r *Runner) keysSince(now time.Time, anchors map[string]buckets.Hour) buckets.Hour {
	since := r.window(now)
	for _, anchor := range anchors {
		since = min(since, anchor)
	}
	return since - r.keyLookback()
}

// keyLookback is the longest a key can be submitted before its distribution
// hour: one rolling period plus the expiry policy.
func (r *Runner) keyLookback() buckets.Hour {
	return buckets.Hour(24 + r.cfg.ExpiryPolicyMinutes/60 + 1)
}

// ApplyDBRetention removes expired submissions. Keys the next run still
// loads for bundling are kept.
func (r *Runner) ApplyDBRetention(ctx context.Context, now time.Time) (db.RetentionResult, error) {
	anchors, err := r.loadAnchors(ctx)
	if err != nil {
		return db.RetentionResult{}, xerr.New(xerr.CodeState, err)
	}
	res, err := r.applyDBRetention(ctx, now, anchors)
	return res, xerr.New(xerr.CodeRetention, err)
}

func (r *Runner) applyDBRetention(ctx context.Context, now time.Time, anchors map[string]buckets.Hour) (db.RetentionResult, error) {
	th, err := db.NewThresholds(now, r.cfg.RetentionDays)
	if err != nil {
		return db.RetentionResult{}, err
	}
	return r.deps.Retention.ApplyRetention(ctx, th.KeepKeysSince(r.keysSince(now, anchors)))
}

func (r *Runner) anchorsKey() string {
	return r.cfg.LockKey + ":shift-anchors"
}

func (r *Runner) loadAnchors(ctx context.Context) (map[string]buckets.Hour, error) {
	if r.deps.State == nil {
		return nil, nil
	}
	raw, err := r.deps.State.Get(ctx, r.anchorsKey())
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load shift anchors: %w", err)
	}
	var anchors map[string]buckets.Hour
	if err := json.Unmarshal(raw, &anchors); err != nil {
		return nil, fmt.Errorf("decode shift anchors: %w", err)
	}
	return anchors, nil
}

func (r *Runner) saveAnchors(ctx context.Context, anchors map[string]buckets.Hour) error {
	if r.deps.State == nil || len(anchors) == 0 {
		return nil
	}
	raw, err := json.Marshal(anchors)
	if err != nil {
		return err
	}
	if err := r.deps.State.Set(ctx, r.anchorsKey(), raw, 0); err != nil {
		return fmt.Errorf("store shift anchors: %w", err)
	}
	return nil
}

// write replaces the output directory with root.
func (r *Runner) write(root *assembly.Directory) error {
	if err := os.RemoveAll(r.cfg.OutputDir); err != nil {
		return fmt.Errorf("clean output dir: %w", err)
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return root.Write(r.cfg.OutputDir)
}

// WriteTree assembles the tree for now and writes it to the output directory
// without publishing.
func (r *Runner) WriteTree(ctx context.Context, now time.Time) error {
	root, err := r.Assemble(ctx, now, nil)
	if err != nil {
		return err
	}
	return xerr.New(xerr.CodeAssembly, r.write(root))
}

// Publish uploads the written output directory.
func (r *Runner) Publish(ctx context.Context, counter *objectstore.FailedOperationsCounter) (objectstore.Result, error) {
	store := r.cfg.ObjectStore
	publisher := objectstore.NewPublisher(r.deps.Client, counter, objectstore.PublisherConfig{
		Prefix:              r.cfg.RootPrefix,
		MaxThreads:          store.MaxThreads,
		CacheMaxAge:         store.CacheMaxAge,
		PublicRead:          store.PublicRead,
		ForceUpdateKeyFiles: store.ForceUpdateKeyFiles,
	})
	res, err := publisher.Publish(ctx, r.cfg.OutputDir)
	if objectstore.IsThresholdExceeded(err) {
		return res, xerr.New(xerr.CodeThreshold, err)
	}
	return res, xerr.New(xerr.CodeObjectStore, err)
}

// ApplyObjectRetention deletes expired published objects. Objects present in
// the local output directory are kept.
func (r *Runner) ApplyObjectRetention(ctx context.Context, now time.Time, counter *objectstore.FailedOperationsCounter) ([]string, error) {
	cutoffs, err := objectstore.NewCutoffs(now, r.cfg.RetentionDays, r.cfg.HourFileRetentionDays)
	if err != nil {
		return nil, xerr.New(xerr.CodeRetention, err)
	}

	keep := map[string]bool{}
	if local, err := objectstore.ScanLocal(r.cfg.OutputDir); err == nil {
		for _, f := range local {
			keep[f.Key] = true
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, xerr.New(xerr.CodeRetention, err)
	}

	policy := objectstore.NewRetentionPolicy(r.deps.Client, counter, objectstore.RetentionConfig{
		Prefix:                r.cfg.RootPrefix,
		KeyCountries:          bundler.NewDiagnosisKeyBundler(r.KeyOptions()).Packages(),
		TraceWarningCountries: []string{r.cfg.OriginCountry},
		MaxThreads:            r.cfg.ObjectStore.MaxThreads,
	})
	deleted, err := policy.Apply(ctx, cutoffs, keep)
	if objectstore.IsThresholdExceeded(err) {
		return deleted, xerr.New(xerr.CodeThreshold, err)
	}
	return deleted, xerr.New(xerr.CodeRetention, err)
}

func (r *Runner) bundleOptions() bundler.Options {
	return bundler.Options{
		RetentionDays:       r.cfg.RetentionDays,
		MaxRecordsPerBucket: r.cfg.MaxRecordsPerBucket,
		Strict:              r.cfg.StrictBundleLimit,
	}
}

// KeyOptions maps the configuration onto the diagnosis key bundler.
func (r *Runner) KeyOptions() bundler.KeyOptions {
	return bundler.KeyOptions{
		Options:                      r.bundleOptions(),
		SupportedCountries:           r.cfg.SupportedCountries,
		OriginCountry:                r.cfg.OriginCountry,
		EUPackageName:                r.cfg.EUPackageName,
		ExpiryPolicyMinutes:          r.cfg.ExpiryPolicyMinutes,
		ShiftingPolicyThreshold:      r.cfg.ShiftingPolicyThreshold,
		ApplyPoliciesForAllCountries: r.cfg.ApplyPoliciesForAllCountries,
	}
}

// StructureConfig maps the configuration onto the tree layout.
func (r *Runner) StructureConfig() structure.Config {
	return structure.Config{
		RootName:        r.cfg.RootPrefix,
		ArchiveName:     r.cfg.ArchiveName,
		PayloadName:     r.cfg.PayloadName,
		SignatureName:   r.cfg.SignatureName,
		FileHeader:      r.cfg.FileHeader,
		FileHeaderWidth: r.cfg.FileHeaderWidth,
		SignatureInfo: export.SignatureInfo{
			VerificationKeyVersion: r.cfg.VerificationKeyVersion,
			VerificationKeyID:      r.cfg.VerificationKeyID,
			SignatureAlgorithm:     signing.Algorithm,
		},
		HourFileRetentionDays: r.cfg.HourFileRetentionDays,
		IncludeIncompleteDays: r.cfg.IncludeIncompleteDays,
		TraceWarningCountries: []string{r.cfg.OriginCountry},
	}
}
