package metrics

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAccumulate(t *testing.T, s Series, recs ...Record) Series {
	t.Helper()
	for _, r := range recs {
		var err error
		s, err = Accumulate(s, r)
		require.NoError(t, err)
	}
	return s
}

func TestAccumulate(t *testing.T) {
	s := mustAccumulate(t, NewSeries("2016-05-06"),
		Record{Date: "2016-05-16", Same: 100, Added: 10, Deleted: 5, Total: 110},
		Record{Date: "2016-06-01", Same: 50, Added: 5, Deleted: 20, Total: 55},
	)

	assert.Len(t, s.Records, 2)
	assert.Equal(t, "2016-05-06", s.Start)
	assert.Equal(t, "2016-06-01", s.End)
	assert.InDelta(t, 0.1, s.MaxAddedFraction, 1e-9)
	assert.InDelta(t, 0.4, s.MaxDeletedFraction, 1e-9)
}

func TestAccumulateIsPure(t *testing.T) {
	base := mustAccumulate(t, NewSeries("2016-05-06"),
		Record{Date: "2016-05-16", Same: 10, Added: 1})

	_, err := Accumulate(base, Record{Date: "2016-05-20", Same: 10, Added: 9})
	require.NoError(t, err)

	assert.Len(t, base.Records, 1)
	assert.Equal(t, "2016-05-16", base.End)
	assert.InDelta(t, 0.1, base.MaxAddedFraction, 1e-9)
}

func TestAccumulateSkipsZeroSame(t *testing.T) {
	s := mustAccumulate(t, Series{},
		Record{Date: "2016-05-16", Same: 0, Added: 10, Deleted: 3, Total: 10},
		Record{Date: "2016-05-17", Same: 10, Added: 2, Deleted: 1, Total: 12},
	)
	assert.Equal(t, "2016-05-16", s.Start)
	assert.InDelta(t, 0.2, s.MaxAddedFraction, 1e-9)
	assert.InDelta(t, 0.1, s.MaxDeletedFraction, 1e-9)
}

func TestAccumulateRejects(t *testing.T) {
	s := mustAccumulate(t, NewSeries("2016-05-06"), Record{Date: "2016-05-16", Same: 1})

	tests := []struct {
		name      string
		date      string
		outOfOrder bool
	}{
		{name: "earlier", date: "2016-05-10", outOfOrder: true},
		{name: "same date", date: "2016-05-16", outOfOrder: true},
		{name: "not a date", date: "May 20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accumulate(s, Record{Date: tt.date, Same: 1})
			require.Error(t, err)
			assert.Equal(t, tt.outOfOrder, errors.Is(err, ErrOutOfOrder))
			assert.Equal(t, s, got)
		})
	}

	t.Run("not after start", func(t *testing.T) {
		_, err := Accumulate(NewSeries("2016-05-06"), Record{Date: "2016-05-06"})
		assert.ErrorIs(t, err, ErrOutOfOrder)
	})
}

func TestWriteData(t *testing.T) {
	s := mustAccumulate(t, NewSeries("2016-05-06"),
		Record{Date: "2016-05-16", Same: 1234, Added: 56, Deleted: 7, Total: 1290},
	)

	var buf bytes.Buffer
	require.NoError(t, WriteData(&buf, s))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.Equal(t, "2016-05-16      1234       56        7      1290", lines[1])
	assert.Equal(t, []string{"2016-05-16", "1234", "56", "7", "1290"}, strings.Fields(lines[1]))
}

func TestWriteDataEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteData(&buf, Series{}))
	assert.Equal(t, dataHeader, buf.String())
}

func TestWriteChartScript(t *testing.T) {
	s := mustAccumulate(t, NewSeries("2016-05-06"),
		Record{Date: "2016-05-16", Same: 100, Added: 25, Deleted: 10},
		Record{Date: "2017-01-10", Same: 100, Added: 5, Deleted: 50},
	)

	var buf bytes.Buffer
	err := WriteChartScript(&buf, ChartParams{Series: s, DataFile: "BF2_triples_changes.dat", GraphFile: "BF2_triples_changes.png"})
	require.NoError(t, err)

	script := buf.String()
	assert.Contains(t, script, `set xrange ["2016-04-06" : "2017-02-09"]`)
	assert.Contains(t, script, "set yrange [-60 : 30]")
	assert.Contains(t, script, "set output 'BF2_triples_changes.png'")
	assert.Contains(t, script, `"BF2_triples_changes.dat" using 1:(100.0*$3/$2)`)
	assert.Contains(t, script, `"BF2_triples_changes.dat" using 1:(-100.0*$4/$2)`)
}

func TestWriteChartScriptRequiresDates(t *testing.T) {
	var buf bytes.Buffer
	err := WriteChartScript(&buf, ChartParams{Series: Series{}})
	assert.Error(t, err)
}

func TestRenderChart(t *testing.T) {
	if _, err := exec.LookPath("gnuplot"); err != nil {
		t.Skip("gnuplot not installed")
	}
	err := RenderChart(context.Background(), filepath.Join(t.TempDir(), "missing.gnu"))
	assert.Error(t, err)
}
