package journal_test

import (
	"testing"

	"github.com/abcforge/abcsim/pkg/journal"
)

func TestRecord_FullOutputKeepsEveryGeneration(t *testing.T) {
	j, err := journal.New(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		j.Record(journal.Entry{Parameters: [][]float64{{float64(i)}}}, i == 2)
	}
	if len(j.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(j.Entries))
	}
}

func TestRecord_SummaryOutputKeepsOnlyFinal(t *testing.T) {
	j, err := journal.New(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		j.Record(journal.Entry{Parameters: [][]float64{{float64(i)}}}, i == 2)
	}
	if len(j.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(j.Entries))
	}
	if j.Entries[0].Parameters[0][0] != 2 {
		t.Errorf("expected the final generation's parameters, got %v", j.Entries[0].Parameters)
	}
}

func TestNew_RejectsInvalidFullOutput(t *testing.T) {
	if _, err := journal.New(2, nil); err == nil {
		t.Fatal("expected an error for full_output outside {0,1}")
	}
}
