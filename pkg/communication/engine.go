package communication

import (
	"context"
	"runtime"
	"sort"

	"commetrics-server/pkg/diarization"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Analyzer names used when reporting per-call outcomes
const (
	AnalyzerInterruptions = "interruptions"
	AnalyzerTalkListen    = "talk_listen"
)

// Outcome explains what happened to a single call during analysis
type Outcome string

const (
	OutcomeAnalyzed      Outcome = "analyzed"
	OutcomeIneligible    Outcome = "ineligible"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeNotApplicable Outcome = "not_applicable"
)

// Observer receives one outcome per call per analyzer. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveCall(analyzer string, outcome Outcome)
}

// Below this many calls the map step runs inline
const parallelThreshold = 64

// Options configures an Engine
type Options struct {
	// Workers caps the goroutines used for per-call analysis. Zero means NumCPU.
	Workers  int
	Observer Observer
}

// Engine turns call rows into per-manager communication reports. It holds no
// per-request state and can be shared between goroutines.
type Engine struct {
	logger   *logrus.Logger
	workers  int
	observer Observer
}

// NewEngine creates a report engine
func NewEngine(logger *logrus.Logger, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		logger:   logger,
		workers:  workers,
		observer: opts.Observer,
	}
}

// Eligible applies the data-source pre-filter: a diarization blob must be
// present and the call must be longer than MinAudioDurationSec. The declared
// speaker count is checked after parsing.
func Eligible(call *CallRecord) bool {
	return call != nil && call.DiarizationJSON != nil && call.AudioDurationSec > MinAudioDurationSec
}

type callResult struct {
	call *CallRecord

	interruptions        InterruptionMetrics
	interruptionsOutcome Outcome

	talkListen        TalkListenMetrics
	talkListenOutcome Outcome
}

func analyzeCall(call *CallRecord) callResult {
	result := callResult{call: call}

	if !Eligible(call) {
		result.interruptionsOutcome = OutcomeIneligible
		result.talkListenOutcome = OutcomeIneligible
		return result
	}

	record, err := diarization.Parse(*call.DiarizationJSON)
	if err != nil || !record.Valid() {
		result.interruptionsOutcome = OutcomeMalformed
		result.talkListenOutcome = OutcomeMalformed
		return result
	}
	if record.SpeakersCount < MinSpeakersCount {
		result.interruptionsOutcome = OutcomeIneligible
		result.talkListenOutcome = OutcomeIneligible
		return result
	}

	var ok bool
	result.interruptionsOutcome = OutcomeNotApplicable
	if result.interruptions, ok = AnalyzeInterruptions(record); ok {
		result.interruptionsOutcome = OutcomeAnalyzed
	}
	result.talkListenOutcome = OutcomeNotApplicable
	if result.talkListen, ok = AnalyzeTalkListen(record); ok {
		result.talkListenOutcome = OutcomeAnalyzed
	}
	return result
}

// analyze runs the per-call step. Results keep the input order whatever the
// worker count, so the reduce below is deterministic.
func (e *Engine) analyze(ctx context.Context, calls []CallRecord) ([]callResult, error) {
	results := make([]callResult, len(calls))

	if len(calls) < parallelThreshold || e.workers == 1 {
		for i := range calls {
			results[i] = analyzeCall(&calls[i])
		}
		return results, ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	chunk := (len(calls) + e.workers - 1) / e.workers
	for start := 0; start < len(calls); start += chunk {
		end := start + chunk
		if end > len(calls) {
			end = len(calls)
		}
		lo, hi := start, end
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = analyzeCall(&calls[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) observe(results []callResult, interruptions, talkListen bool) {
	if e.observer == nil {
		return
	}
	for i := range results {
		if interruptions {
			e.observer.ObserveCall(AnalyzerInterruptions, results[i].interruptionsOutcome)
		}
		if talkListen {
			e.observer.ObserveCall(AnalyzerTalkListen, results[i].talkListenOutcome)
		}
	}
}

// managerGroups keeps accumulators in first-seen order
type managerGroups[T any] struct {
	order []string
	index map[string]*T
}

func newManagerGroups[T any]() *managerGroups[T] {
	return &managerGroups[T]{index: make(map[string]*T)}
}

func (g *managerGroups[T]) get(name string, init func() *T) *T {
	if acc, ok := g.index[name]; ok {
		return acc
	}
	acc := init()
	g.index[name] = acc
	g.order = append(g.order, name)
	return acc
}

type interruptionAcc struct {
	department    string
	calls         int
	interruptions int
	transitions   int
	rates         []float64
}

type talkListenAcc struct {
	department string
	calls      int
	ratios     []float64
	dominances []float64
}

type dayAcc struct {
	first  []float64
	second []float64
}

// Interruptions builds the per-manager interruption report
func (e *Engine) Interruptions(ctx context.Context, calls []CallRecord) (*InterruptionReport, error) {
	results, err := e.analyze(ctx, calls)
	if err != nil {
		return nil, err
	}
	e.observe(results, true, false)

	managers := newManagerGroups[interruptionAcc]()
	days := make(map[string]*dayAcc)

	for _, r := range results {
		if r.interruptionsOutcome != OutcomeAnalyzed {
			continue
		}
		acc := managers.get(r.call.ManagerName, func() *interruptionAcc {
			return &interruptionAcc{department: r.call.Department}
		})
		acc.calls++
		acc.interruptions += r.interruptions.InterruptionsCount
		acc.transitions += r.interruptions.TotalTransitions
		acc.rates = append(acc.rates, r.interruptions.InterruptionRate)

		day := dayFor(days, r.call.CallDate)
		day.first = append(day.first, r.interruptions.InterruptionRate)
	}

	report := &InterruptionReport{
		Managers: make([]InterruptionManager, 0, len(managers.order)),
		Timeline: make([]InterruptionTimelinePoint, 0, len(days)),
	}
	for _, name := range managers.order {
		acc := managers.index[name]
		rate := round(mean(acc.rates), 2)
		report.Managers = append(report.Managers, InterruptionManager{
			Name:               name,
			Department:         acc.department,
			CallsCount:         acc.calls,
			InterruptionRate:   rate,
			TotalInterruptions: acc.interruptions,
			TotalTransitions:   acc.transitions,
			Severity:           ClassifyInterruptionRate(rate),
		})
	}
	sort.SliceStable(report.Managers, func(i, j int) bool {
		a, b := report.Managers[i], report.Managers[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.InterruptionRate > b.InterruptionRate
	})

	for _, date := range sortedDates(days) {
		day := days[date]
		report.Timeline = append(report.Timeline, InterruptionTimelinePoint{
			Date:                date,
			AvgInterruptionRate: round(mean(day.first), 2),
			CallsCount:          len(day.first),
		})
	}

	e.logger.WithFields(logrus.Fields{
		"calls":    len(calls),
		"managers": len(report.Managers),
		"days":     len(report.Timeline),
	}).Debug("Interruption report computed")

	return report, nil
}

// TalkListen builds the per-manager talk/listen report
func (e *Engine) TalkListen(ctx context.Context, calls []CallRecord) (*TalkListenReport, error) {
	results, err := e.analyze(ctx, calls)
	if err != nil {
		return nil, err
	}
	e.observe(results, false, true)

	managers := newManagerGroups[talkListenAcc]()
	days := make(map[string]*dayAcc)

	for _, r := range results {
		if r.talkListenOutcome != OutcomeAnalyzed {
			continue
		}
		acc := managers.get(r.call.ManagerName, func() *talkListenAcc {
			return &talkListenAcc{department: r.call.Department}
		})
		acc.calls++
		acc.ratios = append(acc.ratios, r.talkListen.TalkToListenRatio)
		acc.dominances = append(acc.dominances, r.talkListen.ManagerDominance)

		day := dayFor(days, r.call.CallDate)
		day.first = append(day.first, r.talkListen.TalkToListenRatio)
		day.second = append(day.second, r.talkListen.ManagerDominance)
	}

	report := &TalkListenReport{
		Managers: make([]TalkListenManager, 0, len(managers.order)),
		Timeline: make([]TalkListenTimelinePoint, 0, len(days)),
	}
	for _, name := range managers.order {
		acc := managers.index[name]
		ratio := round(mean(acc.ratios), 2)
		report.Managers = append(report.Managers, TalkListenManager{
			Name:              name,
			Department:        acc.department,
			CallsCount:        acc.calls,
			TalkToListenRatio: ratio,
			ManagerDominance:  round(mean(acc.dominances), 2),
			Severity:          ClassifyTalkListenRatio(ratio),
		})
	}
	sort.SliceStable(report.Managers, func(i, j int) bool {
		a, b := report.Managers[i], report.Managers[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.TalkToListenRatio > b.TalkToListenRatio
	})

	for _, date := range sortedDates(days) {
		day := days[date]
		report.Timeline = append(report.Timeline, TalkListenTimelinePoint{
			Date:                 date,
			AvgTalkToListenRatio: round(mean(day.first), 2),
			AvgManagerDominance:  round(mean(day.second), 2),
			CallsCount:           len(day.first),
		})
	}

	e.logger.WithFields(logrus.Fields{
		"calls":    len(calls),
		"managers": len(report.Managers),
		"days":     len(report.Timeline),
	}).Debug("Talk/listen report computed")

	return report, nil
}

// Summary builds the combined report. A call only counts when both analyzers
// produce metrics for it. Managers are ordered by severity alone; within a tier
// they keep the order in which they first appeared.
func (e *Engine) Summary(ctx context.Context, calls []CallRecord, periodDays int) (*SummaryReport, error) {
	results, err := e.analyze(ctx, calls)
	if err != nil {
		return nil, err
	}
	e.observe(results, true, true)

	type summaryAcc struct {
		department string
		calls      int
		rates      []float64
		ratios     []float64
	}
	managers := newManagerGroups[summaryAcc]()

	for _, r := range results {
		if r.interruptionsOutcome != OutcomeAnalyzed || r.talkListenOutcome != OutcomeAnalyzed {
			continue
		}
		acc := managers.get(r.call.ManagerName, func() *summaryAcc {
			return &summaryAcc{department: r.call.Department}
		})
		acc.calls++
		acc.rates = append(acc.rates, r.interruptions.InterruptionRate)
		acc.ratios = append(acc.ratios, r.talkListen.TalkToListenRatio)
	}

	report := &SummaryReport{
		Managers:   make([]SummaryManager, 0, len(managers.order)),
		PeriodDays: periodDays,
	}
	for _, name := range managers.order {
		acc := managers.index[name]
		rate := round(mean(acc.rates), 2)
		ratio := round(mean(acc.ratios), 2)
		report.Managers = append(report.Managers, SummaryManager{
			Name:              name,
			Department:        acc.department,
			CallsCount:        acc.calls,
			InterruptionRate:  rate,
			TalkToListenRatio: ratio,
			Severity:          Worse(ClassifyInterruptionRate(rate), ClassifyTalkListenRatio(ratio)),
		})
	}
	sort.SliceStable(report.Managers, func(i, j int) bool {
		return report.Managers[i].Severity.Rank() < report.Managers[j].Severity.Rank()
	})

	e.logger.WithFields(logrus.Fields{
		"calls":       len(calls),
		"managers":    len(report.Managers),
		"period_days": periodDays,
	}).Debug("Summary report computed")

	return report, nil
}

func dayFor(days map[string]*dayAcc, date string) *dayAcc {
	day, ok := days[date]
	if !ok {
		day = &dayAcc{}
		days[date] = day
	}
	return day
}

// sortedDates relies on YYYY-MM-DD sorting lexically
func sortedDates(days map[string]*dayAcc) []string {
	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
