package appcore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"scflow/internal/config"
	"scflow/internal/markers"
	"scflow/internal/output"
)

func TestMarkerWriterFactoryHeader(t *testing.T) {
	var out, errb bytes.Buffer
	produce := func(ctx context.Context, send func(markers.Marker) error) (int, error) {
		return 1, send(markers.Marker{Cluster: "0", Gene: "A", PVal: 0.5, PValAdj: 1})
	}
	code := Run[markers.Marker](context.Background(), &out, &errb, Options{NoResultExitCode: 1}, produce, NewMarkerWriterFactory("text", false))
	if code != ExitOK {
		t.Fatalf("exit %d, stderr %q", code, errb.String())
	}
	if strings.Contains(out.String(), output.MarkerHeader) || !strings.HasPrefix(out.String(), "0\tA\t0.5") {
		t.Fatalf("stdout: %q", out.String())
	}
}

func TestRunNoResultExitCode(t *testing.T) {
	var out, errb bytes.Buffer
	produce := func(context.Context, func(markers.Marker) error) (int, error) { return 0, nil }
	if code := Run[markers.Marker](context.Background(), &out, &errb, Options{NoResultExitCode: 7}, produce, NewMarkerWriterFactory("json", true)); code != 7 {
		t.Fatalf("want 7, got %d", code)
	}
}

func TestRunErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Usagef("bad input %s", "x"), ExitUsage},
		{fmt.Errorf("load: %w", config.ErrInvalid), ExitUsage},
		{fmt.Errorf("stage: %w", context.Canceled), ExitCancelled},
		{errors.New("disk full"), ExitRuntime},
	}
	for _, c := range cases {
		var out, errb bytes.Buffer
		produce := func(context.Context, func(markers.Marker) error) (int, error) { return 0, c.err }
		got := Run[markers.Marker](context.Background(), &out, &errb, Options{}, produce, NewMarkerWriterFactory("text", true))
		if got != c.want {
			t.Fatalf("%v: want %d, got %d", c.err, c.want, got)
		}
		if c.want == ExitCancelled && errb.Len() != 0 {
			t.Fatalf("cancellation printed %q", errb.String())
		}
	}
	if ExitCode(nil) != ExitOK || ExitCode(Usage(nil)) != ExitOK {
		t.Fatal("nil must map to ExitOK")
	}
}
