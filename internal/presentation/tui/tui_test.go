package tui_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/labflow/internal/presentation/tui"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityMarkdown(t *testing.T) {
	lab := lims.NewLab()
	s, err := lab.NewSample("S-1")
	require.NoError(t, err)
	p, err := lab.NewPartition(s, "S-1-P1")
	require.NoError(t, err)

	md := tui.EntityMarkdown(p,
		domain.States{domain.AxisReview: "sample_due", domain.AxisCancellation: "active"},
		[]domain.Axis{domain.AxisReview, domain.AxisCancellation},
		[]domain.HistoryEntry{
			{Transition: "no_sampling_workflow", Axis: domain.AxisReview, From: "sample_registered", To: "sample_due",
				Actor: "clerk", Comment: "a|b", Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
			{Axis: domain.AxisCancellation, To: "active"},
		})

	assert.Contains(t, md, "# sample_partition `S-1-P1`")
	assert.Contains(t, md, "Parent: sample `S-1`")
	assert.Contains(t, md, "| review | sample_due |")
	assert.Contains(t, md, "| 2024-03-01 10:00:00 | no_sampling_workflow |")
	assert.Contains(t, md, `a\|b`)
	assert.Contains(t, md, "| _forced_ |")
}

func TestEntityMarkdown_NoHistory(t *testing.T) {
	lab := lims.NewLab()
	w, err := lab.NewWorksheet("WS-1")
	require.NoError(t, err)

	md := tui.EntityMarkdown(w, domain.States{}, nil, nil)
	assert.Contains(t, md, "_No transitions yet._")
	assert.NotContains(t, md, "Parent:")
}

func TestForWriter_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := tui.ForWriter(&buf)
	out, err := r("# title")
	require.NoError(t, err)
	assert.Equal(t, "# title", out)
}

func TestFormatOutcome(t *testing.T) {
	var buf bytes.Buffer // not a terminal: no escape codes
	assert.Equal(t, "performed", tui.FormatOutcome(&buf, domain.Performed()))
	assert.Equal(t, "rejected (not_allowed: waiting for partitions)",
		tui.FormatOutcome(&buf, domain.Rejection(domain.ReasonNotAllowed, "waiting for partitions")))
	assert.Equal(t, "failed: boom", tui.FormatOutcome(&buf, domain.Failure(domain.ReasonCommitFailed, errors.New("boom"))))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|\\__,_|_.__/")
}
