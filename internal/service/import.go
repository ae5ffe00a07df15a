package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jask/moneyimport/internal/database/repository"
	"github.com/jask/moneyimport/internal/dedup"
	"github.com/jask/moneyimport/internal/fingerprint"
	"github.com/jask/moneyimport/internal/formats"
	"github.com/jask/moneyimport/internal/logger"
	"github.com/jask/moneyimport/internal/statement"
)

// Store is the persistence the orchestrator needs. *repository.SessionRepo
// satisfies it.
type Store interface {
	ExistingScopedHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	UnscopedHashOwners(ctx context.Context, hashes []string) (map[string][]string, error)
	Commit(ctx context.Context, c repository.SessionCommit) (repository.CommitOutcome, error)
	Revert(ctx context.Context, id string) (repository.ImportSession, error)
	Get(ctx context.Context, id string) (repository.ImportSession, error)
	List(ctx context.Context, limit int) ([]repository.ImportSession, error)
}

// CategoryLookup resolves bucket names to category ids.
type CategoryLookup interface {
	IDsByName(ctx context.Context) (map[string]string, error)
}

// Enricher runs after a successful commit. Its errors never fail an import.
type Enricher interface {
	Enrich(ctx context.Context, sessionID string) error
}

// Limits bound a batch and the preview handles kept for it.
type Limits struct {
	MaxFiles        int
	MaxBytes        int64
	PreviewTTL      time.Duration
	PreviewCapacity int
	// SampleRows of zero means the default; negative turns samples off.
	SampleRows int
}

// DefaultLimits mirrors the default configuration.
var DefaultLimits = Limits{
	MaxFiles:        20,
	MaxBytes:        10 << 20,
	PreviewTTL:      15 * time.Minute,
	PreviewCapacity: 64,
	SampleRows:      5,
}

func (l Limits) withDefaults() Limits {
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultLimits.MaxFiles
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultLimits.MaxBytes
	}
	if l.PreviewTTL <= 0 {
		l.PreviewTTL = DefaultLimits.PreviewTTL
	}
	if l.PreviewCapacity <= 0 {
		l.PreviewCapacity = DefaultLimits.PreviewCapacity
	}
	switch {
	case l.SampleRows == 0:
		l.SampleRows = DefaultLimits.SampleRows
	case l.SampleRows < 0:
		l.SampleRows = 0
	}
	return l
}

// ImportService drives a batch from upload to committed session.
type ImportService struct {
	Store      Store
	Registry   *formats.Registry
	Categories CategoryLookup
	Enricher   Enricher
	Limits     Limits
	// Now defaults to time.Now.
	Now func() time.Time

	once     sync.Once
	previews *lru.LRU[string, *batch]
}

func (s *ImportService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ImportService) cache() *lru.LRU[string, *batch] {
	s.once.Do(func() {
		l := s.Limits.withDefaults()
		s.previews = lru.NewLRU[string, *batch](l.PreviewCapacity, nil, l.PreviewTTL)
	})
	return s.previews
}

func (s *ImportService) checkLimits(files []File) error {
	if len(files) == 0 {
		return ErrNoFilesIncluded
	}
	l := s.Limits.withDefaults()
	if len(files) > l.MaxFiles {
		return fmt.Errorf("%w: %d files, limit %d", ErrBatchTooLarge, len(files), l.MaxFiles)
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	if total > l.MaxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrBatchTooLarge, total, l.MaxBytes)
	}
	return nil
}

// Preview parses and classifies a batch without writing anything. The
// returned handle stays valid until it expires, is confirmed or is discarded.
func (s *ImportService) Preview(ctx context.Context, files []File) (PreviewResult, error) {
	log := logger.FromContext(ctx)
	if err := s.checkLimits(files); err != nil {
		return PreviewResult{}, err
	}
	reg := s.Registry
	if reg == nil {
		reg = formats.NewRegistry(nil)
	}

	b := newBatch(uuid.NewString(), s.now())
	if err := b.transition(StatePreviewing); err != nil {
		return PreviewResult{}, err
	}
	for i, f := range files {
		fs := &fileState{index: i, name: f.Name, size: len(f.Data)}
		fs.detection, fs.parsed, fs.err = reg.Run(f.Name, f.Data, formats.Options{
			AccountLabel: f.Account,
			Mapping:      f.Mapping,
		})
		if fs.err != nil {
			log.Warn().Err(fs.err).Str("batch", b.id).Str("file", f.Name).Msg("file skipped")
		}
		b.files = append(b.files, fs)
	}

	p, err := s.resolve(ctx, b.files)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("lookup existing fingerprints: %w", err)
	}
	if err := b.transition(StateAwaitingConfirmation); err != nil {
		return PreviewResult{}, err
	}
	s.cache().Add(b.id, b)

	res := s.previewResult(b, p)
	log.Info().
		Str("batch", b.id).
		Int("files", len(files)).
		Int("new", res.Aggregate.TotalNew).
		Int("duplicates", res.Aggregate.TotalDuplicateExisting+res.Aggregate.TotalDuplicateInBatch).
		Msg("preview")
	return res, nil
}

// State reports the state of a live preview handle.
func (s *ImportService) State(handle string) (BatchState, bool) {
	b, ok := s.cache().Peek(handle)
	if !ok {
		return "", false
	}
	return b.State(), true
}

// Discard drops a preview handle. It reports whether the handle was live.
func (s *ImportService) Discard(handle string) bool {
	return s.cache().Remove(handle)
}

// ConfirmOptions shape what a confirmation commits.
type ConfirmOptions struct {
	// Include names the files to commit. Nil includes every file.
	Include []string
	// AccountOverrides relabels every row of the named file.
	AccountOverrides map[string]string
}

// Confirm commits a previewed batch. Classification is recomputed against
// the store, so rows persisted since the preview become duplicates. The
// commit itself is not cancellable once started.
func (s *ImportService) Confirm(ctx context.Context, handle string, opts ConfirmOptions) (CommitResult, error) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{"batch": handle})
	b, ok := s.cache().Get(handle)
	if !ok {
		return CommitResult{}, ErrPreviewExpired
	}

	b.mu.Lock()
	if b.state != StateAwaitingConfirmation {
		state := b.state
		b.mu.Unlock()
		return CommitResult{}, fmt.Errorf("%w: batch is %s", ErrBatchNotConfirmable, state)
	}
	included, err := selectFiles(b.files, opts)
	if err != nil {
		b.mu.Unlock()
		return CommitResult{}, err
	}
	if err := b.transitionLocked(StateCommitting); err != nil {
		b.mu.Unlock()
		return CommitResult{}, err
	}
	b.mu.Unlock()
	s.cache().Remove(handle)

	ctx = context.WithoutCancel(ctx)
	res, err := s.commit(ctx, b, included)
	if err != nil {
		_ = b.transition(StateFailed)
		log.Error().Err(err).Msg("commit")
		return CommitResult{State: StateFailed}, err
	}
	_ = b.transition(StateCompleted)
	res.State = StateCompleted

	log.Info().
		Str("session", res.SessionID).
		Int("files", len(res.Files)).
		Int("new", res.Persisted).
		Int("duplicates", res.Duplicates.Existing+res.Duplicates.InBatch()).
		Msg("commit")

	if s.Enricher != nil {
		if err := s.Enricher.Enrich(ctx, res.SessionID); err != nil {
			log.Warn().Err(err).Str("session", res.SessionID).Msg("enrichment failed")
		}
	}
	return res, nil
}

// selectFiles applies the include list and account overrides to copies of
// the batch's files.
func selectFiles(files []*fileState, opts ConfirmOptions) ([]*fileState, error) {
	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f.name] = true
	}
	for _, name := range opts.Include {
		if !known[name] {
			return nil, fmt.Errorf("include: %q is not part of this batch", name)
		}
	}
	for name := range opts.AccountOverrides {
		if !known[name] {
			return nil, fmt.Errorf("account override: %q is not part of this batch", name)
		}
	}

	var out []*fileState
	for _, f := range files {
		if opts.Include != nil && !slices.Contains(opts.Include, f.name) {
			continue
		}
		c := *f
		if label, ok := opts.AccountOverrides[f.name]; ok {
			c.account = label
		}
		out = append(out, &c)
	}
	if len(out) == 0 {
		return nil, ErrNoFilesIncluded
	}
	return out, nil
}

// plan is one fold over a batch's files in commit order.
type plan struct {
	order   []*fileState
	results []dedup.FileResult // parallel to order
	total   dedup.Counts
}

func (p plan) resultFor(f *fileState) (dedup.FileResult, bool) {
	for i, o := range p.order {
		if o == f {
			return p.results[i], true
		}
	}
	return dedup.FileResult{}, false
}

// commitOrder sorts files by their earliest transaction date, then latest,
// then name and upload position. Files without drafts go last.
func commitOrder(files []*fileState) []*fileState {
	out := slices.Clone(files)
	sort.SliceStable(out, func(i, j int) bool {
		fi, ti, oki := out[i].parsed.DateRange()
		fj, tj, okj := out[j].parsed.DateRange()
		if oki != okj {
			return oki
		}
		if !fi.Equal(fj) {
			return fi.Before(fj)
		}
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].index < out[j].index
	})
	return out
}

func (s *ImportService) resolve(ctx context.Context, files []*fileState) (plan, error) {
	order := commitOrder(files)
	drafts := make([][]statement.Draft, len(order))
	var scoped, unscoped []string
	seenScoped := map[string]bool{}
	seenUnscoped := map[string]bool{}
	for i, f := range order {
		if f.failed() {
			continue
		}
		drafts[i] = f.drafts()
		for _, fp := range fingerprint.All(drafts[i]) {
			if !seenScoped[fp.Scoped] {
				seenScoped[fp.Scoped] = true
				scoped = append(scoped, fp.Scoped)
			}
			if !seenUnscoped[fp.Unscoped] {
				seenUnscoped[fp.Unscoped] = true
				unscoped = append(unscoped, fp.Unscoped)
			}
		}
	}

	existing := dedup.Existing{}
	var err error
	if existing.Scoped, err = s.Store.ExistingScopedHashes(ctx, scoped); err != nil {
		return plan{}, err
	}
	if existing.UnscopedOwners, err = s.Store.UnscopedHashOwners(ctx, unscoped); err != nil {
		return plan{}, err
	}
	results, total := dedup.Resolve(drafts, existing)
	return plan{order: order, results: results, total: total}, nil
}

func (s *ImportService) previewResult(b *batch, p plan) PreviewResult {
	l := s.Limits.withDefaults()
	res := PreviewResult{
		Handle:    b.id,
		State:     b.State(),
		ExpiresAt: b.created.Add(l.PreviewTTL),
	}
	for _, f := range b.files {
		fp := FilePreview{
			Index:     f.index,
			Filename:  f.name,
			Format:    f.detection.Format,
			Mapping:   f.detection.Mapping,
			Hint:      f.detection.Hint,
			Parsed:    len(f.parsed.Drafts),
			RowErrors: f.parsed.Errors,
		}
		if f.failed() {
			fp.Error = f.err.Error()
			res.Aggregate.FailedFiles++
		}
		fp.From, fp.To, _ = f.parsed.DateRange()
		fp.Accounts = accountLabels(f.drafts())
		if r, ok := p.resultFor(f); ok {
			fp.Counts = r.Counts
			for _, o := range r.Outcomes {
				if len(fp.Samples) < l.SampleRows {
					fp.Samples = append(fp.Samples, sampleRow(o))
				}
				if o.Warning != nil {
					res.Warnings = append(res.Warnings, warningFor(f.name, o))
				}
			}
		}
		res.Aggregate.TotalParsed += fp.Parsed
		res.Aggregate.TotalRowErrors += len(fp.RowErrors)
		res.Files = append(res.Files, fp)
	}
	res.Aggregate.TotalNew = p.total.New
	res.Aggregate.TotalDuplicateExisting = p.total.DuplicateExisting
	res.Aggregate.TotalDuplicateInBatch = p.total.DuplicateInBatch()
	res.Aggregate.TotalDuplicateCrossAccountWarning = p.total.CrossAccount
	return res
}

func (s *ImportService) commit(ctx context.Context, b *batch, files []*fileState) (CommitResult, error) {
	p, err := s.resolve(ctx, files)
	if err != nil {
		return CommitResult{}, &CommitError{Reason: "lookup existing fingerprints", Err: err}
	}
	var categories map[string]string
	if s.Categories != nil {
		if categories, err = s.Categories.IDsByName(ctx); err != nil {
			return CommitResult{}, &CommitError{Reason: "load categories", Err: err}
		}
	}

	sessionID := uuid.NewString()
	c := repository.SessionCommit{Session: repository.ImportSession{
		ID:        sessionID,
		Status:    repository.SessionCompleted,
		CreatedAt: s.now(),
	}}
	res := CommitResult{SessionID: sessionID}
	accounts := map[string]bool{}

	for pos, f := range p.order {
		r := p.results[pos]
		fc := FileCommit{
			Filename:  f.name,
			Format:    f.detection.Format,
			Parsed:    len(f.parsed.Drafts),
			Persisted: r.Counts.New,
			RowErrors: len(f.parsed.Errors),
			Duplicates: DuplicateCounts{
				Existing:            r.Counts.DuplicateExisting,
				InFile:              r.Counts.DuplicateInFile,
				CrossFile:           r.Counts.DuplicateCrossFile,
				CrossAccountWarning: r.Counts.CrossAccount,
			},
		}
		if f.failed() {
			res.FileErrors = append(res.FileErrors, FileError{Filename: f.name, Reason: f.err.Error()})
		}
		c.Session.Files = append(c.Session.Files, repository.ImportSessionFile{
			Position:     pos,
			Filename:     f.name,
			Format:       string(f.detection.Format),
			AccountLabel: firstOr(accountLabels(f.drafts()), f.account),
			Counts: repository.SessionCounts{
				Parsed:             fc.Parsed,
				Persisted:          fc.Persisted,
				DuplicateInFile:    fc.Duplicates.InFile,
				DuplicateCrossFile: fc.Duplicates.CrossFile,
				DuplicateExisting:  fc.Duplicates.Existing,
			},
			ErrorCount: fc.RowErrors,
		})

		for _, o := range r.Outcomes {
			if o.Warning != nil {
				res.Warnings = append(res.Warnings, warningFor(f.name, o))
			}
			if o.Class != dedup.New {
				continue
			}
			accountID := repository.AccountID(o.Draft.AccountLabel)
			if !accounts[accountID] {
				accounts[accountID] = true
				c.Accounts = append(c.Accounts, repository.Account{
					ID:          accountID,
					Name:        o.Draft.AccountLabel,
					Institution: institution(o.Draft.OriginFormat, o.Draft.AccountLabel),
					AccountType: accountType(o.Draft.OriginFormat),
				})
			}
			c.Rows = append(c.Rows, repository.PendingRow{File: pos, Transaction: toTransaction(o, accountID, categories)})
		}
		res.Files = append(res.Files, fc)
	}

	counts := &c.Session.Counts
	for _, f := range c.Session.Files {
		counts.Parsed += f.Counts.Parsed
	}
	counts.Persisted = p.total.New
	counts.DuplicateInFile = p.total.DuplicateInFile
	counts.DuplicateCrossFile = p.total.DuplicateCrossFile
	counts.DuplicateExisting = p.total.DuplicateExisting
	c.Session.CrossAccountWarnings = p.total.CrossAccount

	out, err := s.Store.Commit(ctx, c)
	if err != nil {
		return CommitResult{}, &CommitError{Reason: err.Error(), Err: err}
	}

	for pos, n := range out.LateDuplicates {
		res.Files[pos].Persisted -= n
		res.Files[pos].Duplicates.Existing += n
	}
	res.Persisted = out.Inserted
	for _, f := range res.Files {
		res.Duplicates.Existing += f.Duplicates.Existing
		res.Duplicates.InFile += f.Duplicates.InFile
		res.Duplicates.CrossFile += f.Duplicates.CrossFile
		res.Duplicates.CrossAccountWarning += f.Duplicates.CrossAccountWarning
	}
	return res, nil
}

// Rollback reverts a committed session. Rolling back twice is a no-op.
func (s *ImportService) Rollback(ctx context.Context, sessionID string) (repository.ImportSession, error) {
	sess, err := s.Store.Revert(ctx, sessionID)
	if err != nil {
		return repository.ImportSession{}, err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("session", sessionID).
		Int("files", len(sess.Files)).
		Int("new", sess.Counts.Persisted).
		Msg("rollback")
	return sess, nil
}

// Session loads one session with its files.
func (s *ImportService) Session(ctx context.Context, id string) (repository.ImportSession, error) {
	return s.Store.Get(ctx, id)
}

// Sessions lists recent sessions, newest first.
func (s *ImportService) Sessions(ctx context.Context, limit int) ([]repository.ImportSession, error) {
	return s.Store.List(ctx, limit)
}

// IsCommitFailure reports whether err came from the atomic persist step.
func IsCommitFailure(err error) bool {
	var ce *CommitError
	return errors.As(err, &ce)
}

func toTransaction(o dedup.Outcome, accountID string, categories map[string]string) repository.Transaction {
	d := o.Draft
	t := repository.Transaction{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Date:           d.OccurredOn,
		AmountCents:    d.Amount.Shift(2).Round(0).IntPart(),
		RawDescription: d.RawDescription,
		OriginFormat:   string(d.OriginFormat),
		ScopedHash:     o.Fingerprint.Scoped,
		UnscopedHash:   o.Fingerprint.Unscoped,
	}
	if d.Merchant != "" {
		m := d.Merchant
		t.MerchantName = &m
	}
	if d.SourceReference != "" {
		ref := d.SourceReference
		t.ExternalID = &ref
	}
	if id, ok := categories[d.Category]; ok && d.Category != "" {
		t.CategoryID = &id
	}
	return t
}

func sampleRow(o dedup.Outcome) SampleRow {
	return SampleRow{
		Line:        o.Draft.Line,
		Date:        o.Draft.Date(),
		Amount:      o.Draft.Amount,
		Description: o.Draft.RawDescription,
		Merchant:    o.Draft.Merchant,
		Account:     o.Draft.AccountLabel,
		Category:    o.Draft.Category,
		Class:       o.Class,
	}
}

func warningFor(filename string, o dedup.Outcome) CrossAccountWarning {
	return CrossAccountWarning{
		Filename:      filename,
		Line:          o.Warning.Line,
		Date:          o.Draft.Date(),
		Amount:        o.Draft.Amount,
		Description:   o.Draft.RawDescription,
		Account:       o.Draft.AccountLabel,
		OtherAccounts: o.Warning.OtherAccounts,
	}
}

// accountLabels lists distinct account labels in order of first appearance.
func accountLabels(drafts []statement.Draft) []string {
	var out []string
	for _, d := range drafts {
		if !slices.Contains(out, d.AccountLabel) {
			out = append(out, d.AccountLabel)
		}
	}
	return out
}

func firstOr(labels []string, fallback string) string {
	if len(labels) > 0 {
		return labels[0]
	}
	return fallback
}

func institution(f statement.Format, label string) string {
	switch f {
	case statement.FormatBankOfAmerica:
		return "Bank of America"
	case statement.FormatChaseChecking, statement.FormatChaseCredit:
		return "Chase"
	case statement.FormatAmex:
		return "American Express"
	case statement.FormatCapitalOne:
		return "Capital One"
	}
	return label
}

func accountType(f statement.Format) string {
	switch f {
	case statement.FormatChaseCredit, statement.FormatAmex, statement.FormatCapitalOne:
		return "credit"
	}
	return "checking"
}
