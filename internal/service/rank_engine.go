package service

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-classroom-api/internal/models"
)

type rankMetrics interface {
	IncRankFallback()
	IncRankUnmatched()
}

// RankEngine ranks a class roster by summed scores. Every roster member is
// zero-filled, so the class size always equals the roster length.
type RankEngine struct {
	logger  *zap.Logger
	metrics rankMetrics
}

// NewRankEngine constructs a RankEngine. metrics may be nil.
func NewRankEngine(logger *zap.Logger, metrics *MetricsService) *RankEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &RankEngine{logger: logger}
	if metrics != nil {
		engine.metrics = metrics
	}
	return engine
}

// rosterIndex resolves a record's student identifier to a roster position.
// Profile ids are tried first and user ids second.
type rosterIndex struct {
	byID   map[string]int
	byUser map[string]int
}

func newRosterIndex(roster []models.Student) rosterIndex {
	idx := rosterIndex{byID: make(map[string]int, len(roster)), byUser: make(map[string]int, len(roster))}
	for i, s := range roster {
		if _, seen := idx.byID[s.ID]; !seen && s.ID != "" {
			idx.byID[s.ID] = i
		}
		if _, seen := idx.byUser[s.UserID]; !seen && s.UserID != "" {
			idx.byUser[s.UserID] = i
		}
	}
	return idx
}

func (idx rosterIndex) lookup(id string) (pos int, fallback bool, ok bool) {
	if pos, ok := idx.byID[id]; ok {
		return pos, false, true
	}
	if pos, ok := idx.byUser[id]; ok {
		return pos, true, true
	}
	return -1, false, false
}

// tally is the zero-filled per-roster accumulation for one set of records.
type tally struct {
	totals  []float64
	maxes   []float64
	records []int
}

func (e *RankEngine) accumulate(roster []models.Student, idx rosterIndex, records []models.ScoreRecord) tally {
	t := tally{
		totals:  make([]float64, len(roster)),
		maxes:   make([]float64, len(roster)),
		records: make([]int, len(roster)),
	}
	for _, rec := range records {
		pos, fallback, ok := idx.lookup(rec.StudentID)
		if !ok {
			e.logger.Warn("score record matches no roster member",
				zap.String("record_id", rec.ID),
				zap.String("student_id", rec.StudentID),
				zap.String("exam_type", string(rec.ExamType)))
			if e.metrics != nil {
				e.metrics.IncRankUnmatched()
			}
			continue
		}
		if fallback {
			e.logger.Debug("score record joined by user id",
				zap.String("record_id", rec.ID),
				zap.String("user_id", rec.StudentID),
				zap.String("profile_id", roster[pos].ID))
			if e.metrics != nil {
				e.metrics.IncRankFallback()
			}
		}
		t.totals[pos] += rec.Score
		t.maxes[pos] += rec.MaxScore
		t.records[pos]++
	}
	return t
}

// order returns roster positions sorted by total descending. Ties keep roster order.
func (t tally) order() []int {
	order := make([]int, len(t.totals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.totals[order[a]] > t.totals[order[b]]
	})
	return order
}

func (t tally) rankOf(pos int) int {
	if pos < 0 {
		return models.NoRank
	}
	for i, p := range t.order() {
		if p == pos {
			return i + 1
		}
	}
	return models.NoRank
}

// locate finds the roster position of a student by profile id or user id.
func locate(idx rosterIndex, studentID string) int {
	pos, _, ok := idx.lookup(studentID)
	if !ok {
		return -1
	}
	return pos
}

// ExamSummary computes one student's standing in one exam.
func (e *RankEngine) ExamSummary(roster []models.Student, exam models.ExamType, records []models.ScoreRecord, myStudentID string) models.ExamSummary {
	idx := newRosterIndex(roster)
	t := e.accumulate(roster, idx, records)
	me := locate(idx, myStudentID)

	summary := models.ExamSummary{
		ExamType:      exam,
		Rank:          t.rankOf(me),
		TotalStudents: len(roster),
	}
	if me < 0 {
		return summary
	}

	summary.HasData = t.records[me] > 0
	if summary.HasData {
		summary.Total = t.totals[me]
		summary.MaxTotal = t.maxes[me]
		summary.Percentage = percentage(summary.Total, summary.MaxTotal)
	}
	return summary
}

// Overall ranks the student over the union of every exam's records.
func (e *RankEngine) Overall(roster []models.Student, scoresByExam map[models.ExamType][]models.ScoreRecord, myStudentID string) models.OverallRank {
	idx := newRosterIndex(roster)
	t := e.accumulate(roster, idx, union(scoresByExam))
	me := locate(idx, myStudentID)

	overall := models.OverallRank{Rank: t.rankOf(me), TotalStudents: len(roster)}
	if me >= 0 {
		overall.Total = t.totals[me]
	}
	return overall
}

// Summaries returns the per-exam summaries in exam order plus the overall rank.
func (e *RankEngine) Summaries(roster []models.Student, scoresByExam map[models.ExamType][]models.ScoreRecord, myStudentID string) ([]models.ExamSummary, models.OverallRank) {
	summaries := make([]models.ExamSummary, 0, len(models.ExamTypes))
	for _, exam := range models.ExamTypes {
		summaries = append(summaries, e.ExamSummary(roster, exam, scoresByExam[exam], myStudentID))
	}
	return summaries, e.Overall(roster, scoresByExam, myStudentID)
}

// Board ranks the whole roster. The result has one entry per roster member with ranks 1..N.
func (e *RankEngine) Board(roster []models.Student, records []models.ScoreRecord) []models.RankEntry {
	idx := newRosterIndex(roster)
	t := e.accumulate(roster, idx, records)

	entries := make([]models.RankEntry, 0, len(roster))
	for i, pos := range t.order() {
		s := roster[pos]
		entries = append(entries, models.RankEntry{
			StudentID: s.ID,
			UserID:    s.UserID,
			FullName:  s.FullName,
			Roll:      s.Roll,
			Total:     t.totals[pos],
			Rank:      i + 1,
			HasData:   t.records[pos] > 0,
		})
	}
	return entries
}

// OverallBoard ranks the whole roster across every exam.
func (e *RankEngine) OverallBoard(roster []models.Student, scoresByExam map[models.ExamType][]models.ScoreRecord) []models.RankEntry {
	return e.Board(roster, union(scoresByExam))
}

func union(scoresByExam map[models.ExamType][]models.ScoreRecord) []models.ScoreRecord {
	var all []models.ScoreRecord
	for _, exam := range models.ExamTypes {
		all = append(all, scoresByExam[exam]...)
	}
	return all
}

func percentage(total, max float64) *int {
	if max <= 0 {
		return nil
	}
	pct := int(math.Round(total / max * 100))
	return &pct
}
