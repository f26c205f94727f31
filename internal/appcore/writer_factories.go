package appcore

import (
	"io"

	"scflow/internal/markers"
	"scflow/internal/writers"
	"scflow/pkg/api"
)

// ---------------- Marker writer ----------------

type MarkerWriterFactory struct {
	Format string
	Header bool
}

func NewMarkerWriterFactory(format string, header bool) MarkerWriterFactory {
	return MarkerWriterFactory{Format: format, Header: header}
}

func (w MarkerWriterFactory) Start(out io.Writer, bufSize int) (chan<- markers.Marker, <-chan error) {
	return writers.StartMarkerWriter(out, w.Format, w.Header, bufSize)
}

// ---------------- Phase writer ----------------

type PhaseWriterFactory struct {
	Format string
	Header bool
}

func NewPhaseWriterFactory(format string, header bool) PhaseWriterFactory {
	return PhaseWriterFactory{Format: format, Header: header}
}

func (w PhaseWriterFactory) Start(out io.Writer, bufSize int) (chan<- api.PhaseV1, <-chan error) {
	return writers.StartPhaseWriter(out, w.Format, w.Header, bufSize)
}
