package ledger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/cyclopcam/dsprep/pkg/dataset"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// Three classes, two splits, with a known assignment of objects
func fixture() *Ledger {
	l := New()
	objects := []struct {
		class int
		split string
	}{
		{1, "train"}, {1, "train"}, {1, "train"}, {1, "val"},
		{2, "train"}, {2, "val"}, {2, "val"},
		// class 3 has nothing
	}
	for _, o := range objects {
		l.Increment(o.class, o.split)
	}
	return l
}

var fixtureCats = []dataset.Category{{ID: 1, Name: "car"}, {ID: 2, Name: "bus"}, {ID: 3, Name: "tram"}}

func TestLedgerCounts(t *testing.T) {
	l := fixture()
	require.Equal(t, 3, l.Count(1, "train"))
	require.Equal(t, 1, l.Count(1, "val"))
	require.Equal(t, 1, l.Count(2, "train"))
	require.Equal(t, 2, l.Count(2, "val"))
	require.Equal(t, 0, l.Count(3, "train"))
	require.Equal(t, 4, l.Total(1))
	require.Equal(t, 3, l.Total(2))
	require.Equal(t, 0, l.Total(3))
	require.Equal(t, 4, l.SplitTotal("train"))
	require.Equal(t, 3, l.SplitTotal("val"))

	require.InDelta(t, 75.0, l.Fraction(1, "train"), 1e-9)
	require.InDelta(t, 5.0, l.TargetDelta(1, "train", 80), 1e-9)
	require.InDelta(t, 20.0-200.0/3.0, l.TargetDelta(2, "val", 20), 1e-9)
	require.Equal(t, 0.0, l.Fraction(3, "train"))
	require.Equal(t, 0.0, l.TargetDelta(3, "train", 80))
}

func TestLedgerConcurrentMerge(t *testing.T) {
	l := New()
	wg := sync.WaitGroup{}
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := Counts{}
			for i := 0; i < 1000; i++ {
				local.Add(i%3+1, "train", 1)
				l.Increment(1, "val")
			}
			l.Merge(local)
		}()
	}
	wg.Wait()
	require.Equal(t, 8*334, l.Count(1, "train"))
	require.Equal(t, 8*333, l.Count(2, "train"))
	require.Equal(t, 8000, l.Count(1, "val"))
}

func TestReport(t *testing.T) {
	l := fixture()
	r := BuildReport(l, fixtureCats, []SplitWeight{{"train", 80}, {"val", 20}})
	require.Equal(t, []dataset.Category{{ID: 3, Name: "tram"}}, r.ZeroCount)
	require.Len(t, r.Rows, 3)
	require.InDelta(t, 200.0/3.0-20.0, r.MaxAbsDelta(), 1e-9)
	require.InDelta(t, 200.0/3.0-20.0, r.SplitMaxAbsDelta("val"), 1e-9)
	require.Equal(t, 0.0, r.SplitMaxAbsDelta("test"))

	b := r.Balance()
	require.InDelta(t, r.MaxAbsDelta(), b.Max, 1e-12)
	// deltas are 5, 5, 46.67, 46.67
	require.InDelta(t, (5.0+5.0+2*(200.0/3.0-20.0))/4, b.Mean, 1e-9)
	require.Greater(t, b.StdDev, 0.0)

	buf := bytes.Buffer{}
	require.NoError(t, r.WriteCSV(&buf))
	expect := strings.Join([]string{
		"class id,class,#bbox,#bbox in train,fraction train [%],target delta train [%],#bbox in val,fraction val [%],target delta val [%]",
		"1,car,4,3,75.00,5.00,1,25.00,-5.00",
		"2,bus,3,1,33.33,46.67,2,66.67,-46.67",
		"3,tram,0,0,0.00,0.00,0,0.00,0.00",
		"",
	}, "\n")
	if diff := cmp.Diff(expect, buf.String()); diff != "" {
		t.Errorf("distribution table mismatch (-want +got):\n%s", diff)
	}
}

func TestBalanceEmpty(t *testing.T) {
	r := BuildReport(New(), fixtureCats, []SplitWeight{{"train", 100}})
	require.Equal(t, Balance{}, r.Balance())
	require.Len(t, r.ZeroCount, 3)
}
