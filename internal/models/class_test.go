package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectsForClass(t *testing.T) {
	assert.Contains(t, SubjectsForClass("11"), "Higher Mathematics")
	assert.Empty(t, SubjectsForClass("4"))

	subjects := SubjectsForClass("6")
	subjects[0] = "changed"
	assert.Equal(t, "Bangla", SubjectsForClass("6")[0])
}

func TestClassesOrderedNumerically(t *testing.T) {
	assert.Equal(t, []string{"5", "6", "7", "8", "9", "10", "11", "12"}, Classes())
}

func TestDisplayHelpers(t *testing.T) {
	pct := 83
	assert.Equal(t, "-", ExamSummary{}.DisplayRank())
	assert.Equal(t, "Pending", ExamSummary{}.DisplayPercentage())
	assert.Equal(t, "83%", ExamSummary{Percentage: &pct, Rank: 2}.DisplayPercentage())
	assert.Equal(t, "2", OverallRank{Rank: 2}.DisplayRank())
}
