package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
	"finspread/internal/extract"
	"finspread/internal/labeler"
	"finspread/internal/numeric"
	"finspread/internal/period"
	"finspread/internal/taxonomy"
)

// ambiguousPeriodDiscount shrinks the confidence of fields attached to a
// period inferred from a bare calendar year.
const ambiguousPeriodDiscount = 0.9

// runState carries the in-flight artifacts of one run between stages.
// Discarded after output assembly; only the bundle survives.
type runState struct {
	doc    *entity.Document
	pages  []entity.PageUnit
	tables []entity.TableGrid
	label  labeler.LabelResult

	bundle  *entity.StatementBundle
	report  *entity.ValidationReport
	metrics map[string]map[string]*float64
	blocked bool
}

// stageAttempt is one invocable method within a stage's fallback chain.
type stageAttempt struct {
	method string
	invoke func(ctx context.Context) Outcome
}

// attemptsFor builds the ordered fallback chain for a stage. The first
// entry is the primary method; the orchestrator walks the rest on
// recoverable failures.
func (o *Orchestrator) attemptsFor(stage constants.Stage, run *entity.PipelineRun, state *runState) []stageAttempt {
	switch stage {
	case constants.StageIngestion:
		return []stageAttempt{{method: "fs-verify", invoke: func(ctx context.Context) Outcome {
			return o.verifyDocument(ctx, run, state)
		}}}
	case constants.StageTextExtraction:
		var out []stageAttempt
		for _, ex := range o.text[state.doc.FileType] {
			ex := ex
			out = append(out, stageAttempt{method: string(ex.Method()), invoke: func(ctx context.Context) Outcome {
				return o.extractText(ctx, ex, state)
			}})
		}
		if len(out) == 0 {
			out = append(out, unsupportedAttempt(fmt.Sprintf("no text extractor for %s", state.doc.FileType)))
		}
		return out
	case constants.StageTableExtraction:
		var out []stageAttempt
		for _, ex := range o.tables[state.doc.FileType] {
			ex := ex
			out = append(out, stageAttempt{method: string(ex.Method()), invoke: func(ctx context.Context) Outcome {
				return o.extractTables(ctx, ex, state)
			}})
		}
		return out
	case constants.StageLabeling:
		var out []stageAttempt
		for _, lb := range o.labelers {
			lb := lb
			out = append(out, stageAttempt{method: lb.Name(), invoke: func(ctx context.Context) Outcome {
				return o.labelContent(ctx, lb, state)
			}})
		}
		if len(out) == 0 {
			out = append(out, unsupportedAttempt("no labeler configured"))
		}
		return out
	case constants.StageNormalization:
		return []stageAttempt{{method: "deterministic", invoke: func(ctx context.Context) Outcome {
			return o.normalizeFields(run, state)
		}}}
	case constants.StageValidation:
		return []stageAttempt{{method: "cross-statement", invoke: func(ctx context.Context) Outcome {
			return o.validateBundle(state)
		}}}
	case constants.StageOutputAssembly:
		return []stageAttempt{{method: "assemble", invoke: func(ctx context.Context) Outcome {
			return o.assembleOutput(ctx, run, state)
		}}}
	}
	return nil
}

// unsupportedAttempt fails a required stage that has no configured
// method. Table extraction is the only stage allowed to be empty, since
// grid extractors deliver tables inline with text.
func unsupportedAttempt(reason string) stageAttempt {
	return stageAttempt{method: "none", invoke: func(context.Context) Outcome {
		return Fatal(fmt.Errorf("%w: %s", common.ErrUnrecoverableStage, reason))
	}}
}

// verifyDocument loads the document row and confirms the stored bytes
// still match the hash ingestion registered.
func (o *Orchestrator) verifyDocument(ctx context.Context, run *entity.PipelineRun, state *runState) Outcome {
	doc, err := o.docs.GetByID(ctx, run.DocumentID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return Fatal(fmt.Errorf("document %s: %w", run.DocumentID, err))
		}
		return Recoverable(err)
	}
	if _, err := o.store.GetBytes(ctx, doc); err != nil {
		return Fatal(fmt.Errorf("%w: %v", common.ErrUnrecoverableStage, err))
	}
	state.doc = doc
	return Success()
}

func (o *Orchestrator) extractText(ctx context.Context, ex extract.TextExtractor, state *runState) Outcome {
	res, err := ex.ExtractText(ctx, state.doc)
	if out := classify(err, common.ErrUnrecoverableStage); out.Kind != OutcomeSuccess {
		return out
	}
	if len(res.Pages) == 0 {
		return Recoverable(fmt.Errorf("%s produced no pages", ex.Method()))
	}
	state.pages = res.Pages
	// Grid extractors deliver tables inline with the page text.
	for _, p := range res.Pages {
		state.tables = append(state.tables, p.Tables...)
	}
	o.log.Info("pipeline.text_extracted", "document_id", state.doc.ID,
		"method", ex.Method(), "pages", len(res.Pages), "duration", res.Duration)
	return Success()
}

func (o *Orchestrator) extractTables(ctx context.Context, ex extract.TableExtractor, state *runState) Outcome {
	res, err := ex.ExtractTables(ctx, state.doc, state.pages)
	if out := classify(err, common.ErrUnrecoverableStage); out.Kind != OutcomeSuccess {
		return out
	}
	if len(res.Tables) == 0 && len(state.tables) == 0 {
		return Recoverable(fmt.Errorf("%s found no tables", ex.Method()))
	}
	state.tables = append(state.tables, res.Tables...)
	o.log.Info("pipeline.tables_extracted", "document_id", state.doc.ID,
		"method", ex.Method(), "tables", len(res.Tables))
	return Success()
}

func (o *Orchestrator) labelContent(ctx context.Context, lb labeler.Labeler, state *runState) Outcome {
	res, err := lb.Label(ctx, labeler.LabelRequest{
		Document: state.doc,
		Pages:    state.pages,
		Tables:   state.tables,
	})
	if out := classify(err, common.ErrUnrecoverableStage); out.Kind != OutcomeSuccess {
		return out
	}
	if len(res.Fields) == 0 {
		return Recoverable(fmt.Errorf("labeler %s proposed no fields", lb.Name()))
	}
	state.label = res
	o.log.Info("pipeline.labeled", "document_id", state.doc.ID,
		"labeler", lb.Name(), "fields", len(res.Fields), "document_type", res.DocumentType)
	return Success()
}

// normalizeFields is the deterministic core: numeric cleanup, taxonomy
// mapping, period alignment, provenance enforcement, then statement
// assembly. It never calls the labeler.
func (o *Orchestrator) normalizeFields(run *entity.PipelineRun, state *runState) Outcome {
	bundle := &entity.StatementBundle{
		DocumentID:        state.doc.ID,
		RunID:             run.ID,
		IncomeStatement:   entity.Statement{Fields: map[string]map[string]entity.NormalizedField{}},
		BalanceSheet:      entity.Statement{Fields: map[string]map[string]entity.NormalizedField{}},
		CashFlowStatement: entity.Statement{Fields: map[string]map[string]entity.NormalizedField{}},
	}

	periods := o.alignPeriods(state, bundle)
	kept := 0

	for _, c := range state.label.Fields {
		if !c.Source.Valid() {
			bundle.AmbiguityFlags = append(bundle.AmbiguityFlags,
				fmt.Sprintf("dropped %q: no provenance", c.RawLabel))
			continue
		}

		val, err := numeric.Normalize(c.RawValue)
		if err != nil {
			bundle.AmbiguityFlags = append(bundle.AmbiguityFlags,
				fmt.Sprintf("dropped %q: value %q not numeric", c.RawLabel, c.RawValue))
			continue
		}

		periodKey, ambiguous, ok := resolvePeriod(c.RawPeriod, periods)
		if !ok {
			bundle.AmbiguityFlags = append(bundle.AmbiguityFlags,
				fmt.Sprintf("dropped %q: unresolved period %q", c.RawLabel, c.RawPeriod))
			continue
		}

		field := entity.NormalizedField{
			ID:            uuid.New(),
			OriginalLabel: c.RawLabel,
			Value:         val.Amount,
			PeriodKey:     periodKey,
			Currency:      firstNonEmpty(val.CurrencyHint, c.RawCurrency),
			Confidence:    c.Confidence,
			Source:        c.Source,
		}
		if ambiguous {
			field.Confidence *= ambiguousPeriodDiscount
		}

		match, err := o.mapper.Map(c.RawLabel, c.StatementHint)
		if err != nil {
			field.Unmapped = true
			field.CanonicalLabel = taxonomy.NormalizeLabel(c.RawLabel)
			field.Statement = c.StatementHint
			bundle.Unmapped = append(bundle.Unmapped, field)
			var amb *taxonomy.AmbiguousMatchError
			if errors.As(err, &amb) {
				bundle.AmbiguityFlags = append(bundle.AmbiguityFlags,
					fmt.Sprintf("unmapped %q: %d close candidates", c.RawLabel, len(amb.Candidates)))
			}
			kept++
			continue
		}

		field.CanonicalLabel = match.Canonical
		field.Statement = match.Statement
		field.Confidence *= match.Confidence

		st := bundle.StatementFor(match.Statement)
		if st.Fields[periodKey] == nil {
			st.Fields[periodKey] = map[string]entity.NormalizedField{}
			st.Periods = append(st.Periods, periodKey)
		}
		if _, dup := st.Fields[periodKey][match.Canonical]; dup {
			bundle.AmbiguityFlags = append(bundle.AmbiguityFlags,
				fmt.Sprintf("duplicate %s for %s: kept last occurrence", match.Canonical, periodKey))
		}
		st.Fields[periodKey][match.Canonical] = field
		kept++
	}

	if kept == 0 {
		return Fatal(fmt.Errorf("%w: no candidate field survived normalization", common.ErrMissingRequiredField))
	}
	state.bundle = bundle
	o.log.Info("pipeline.normalized", "document_id", state.doc.ID,
		"fields", kept, "unmapped", len(bundle.Unmapped), "flags", len(bundle.AmbiguityFlags))
	return Success()
}

// alignPeriods canonicalizes the distinct raw period headers the labeler
// saw. Unparseable headers are flagged, not fatal.
func (o *Orchestrator) alignPeriods(state *runState, bundle *entity.StatementBundle) map[string]period.Key {
	out := map[string]period.Key{}
	for _, c := range state.label.Fields {
		raw := c.RawPeriod
		if raw == "" {
			continue
		}
		if _, seen := out[raw]; seen {
			continue
		}
		key, err := period.Parse(raw)
		if err != nil {
			bundle.AmbiguityFlags = append(bundle.AmbiguityFlags,
				fmt.Sprintf("unresolved period header %q", raw))
			continue
		}
		out[raw] = key
	}
	return out
}

// resolvePeriod maps a candidate's raw period onto a canonical key. A
// blank raw period adopts the sole aligned period when there is exactly
// one; anything else stays unresolved.
func resolvePeriod(raw string, aligned map[string]period.Key) (key string, ambiguous, ok bool) {
	if raw != "" {
		k, found := aligned[raw]
		if !found {
			return "", false, false
		}
		return k.String(), k.Ambiguous, true
	}
	distinct := map[string]period.Key{}
	for _, k := range aligned {
		distinct[k.String()] = k
	}
	if len(distinct) != 1 {
		return "", false, false
	}
	for s, k := range distinct {
		return s, k.Ambiguous, true
	}
	return "", false, false
}

func (o *Orchestrator) validateBundle(state *runState) Outcome {
	state.report = o.validator.Validate(state.bundle)
	for _, st := range []*entity.Statement{
		&state.bundle.IncomeStatement, &state.bundle.BalanceSheet, &state.bundle.CashFlowStatement,
	} {
		for p, labels := range st.Fields {
			for l, f := range labels {
				f.Routing = o.thresholds.Route(f.Confidence)
				if f.Routing.Blocking() {
					state.blocked = true
				}
				st.Fields[p][l] = f
			}
		}
	}
	// Unmapped fields go through the same bands; a low-confidence one
	// blocks auto-approval like any mapped field.
	for i := range state.bundle.Unmapped {
		f := &state.bundle.Unmapped[i]
		f.Routing = o.thresholds.Route(f.Confidence)
		if f.Routing.Blocking() {
			state.blocked = true
		}
	}
	o.log.Info("pipeline.validated",
		"document_id", state.doc.ID,
		"quality_score", state.report.QualityScore,
		"checks", len(state.report.Checks),
		"blocked", state.blocked)
	return Success()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
