package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/artifact"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/quality"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/session"
)

func TestDefaultTableIsValid(t *testing.T) {
	table := DefaultTable(quality.Options{}, func(name string) bool { return name == Polish })
	require.NoError(t, table.Validate())

	assert.Equal(t, []string{Plan, Page, Polish}, table.Names())
	assert.True(t, table[0].Critical)
	assert.False(t, table[1].Critical)
	assert.True(t, table[2].Critical)
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{"empty", Table{}},
		{"unnamed", Table{{Phase: session.PhaseGenerating}}},
		{"duplicate", Table{{Name: "a", Phase: session.PhaseGenerating}, {Name: "a", Phase: session.PhaseQA}}},
		{"non-generation phase", Table{{Name: "a", Phase: session.PhaseFetching}}},
		{"backwards", Table{{Name: "a", Phase: session.PhaseQA}, {Name: "b", Phase: session.PhaseGenerating}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.table.Validate())
		})
	}

	ok := Table{{Name: "a", Phase: session.PhaseGenerating}, {Name: "b", Phase: session.PhaseGenerating}}
	assert.NoError(t, ok.Validate())
}

func TestInputPrevious(t *testing.T) {
	page := artifact.Files{"index.html": artifact.NewFile("index.html", []byte("<html></html>"))}
	in := Input{Stage: Polish, Prior: map[string]artifact.Files{Page: page}}

	got, ok := in.Previous([]string{Plan, Page, Polish})
	require.True(t, ok)
	assert.Equal(t, page, got)

	in.Stage = Plan
	_, ok = in.Previous([]string{Plan, Page, Polish})
	assert.False(t, ok)
}
