// Package engine drives an external UCI analysis process: spawning and
// handshaking it, parsing its line-oriented output into events, and
// serializing concurrent evaluation requests against the single process.
package engine

import (
	"bytes"
	"strconv"
	"strings"
)

// EventKind tags a parsed engine output line.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventInfo
	EventBestMove
	EventReadyOK
	EventUCIOK
)

// Info carries the fields of an "info" line. Engines emit any subset of
// the fields in any order; absent fields stay zero and HasScore reports
// whether a score was present at all.
type Info struct {
	Depth    int
	ScoreCP  int
	Mate     int
	HasScore bool
	Nodes    uint64
	TimeMS   int64
	PV       []string
}

// Event is one classified engine output line.
type Event struct {
	Kind     EventKind
	Info     Info   // EventInfo
	BestMove string // EventBestMove
	Ponder   string
	Raw      string
}

// LineBuffer reassembles complete lines from arbitrary byte chunks.
// A chunk boundary is not a line boundary: any trailing partial line is
// carried over and completed by a later chunk.
type LineBuffer struct {
	partial []byte
}

// Feed appends a chunk and returns the complete lines it closed, without
// their terminators.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.partial = append(b.partial, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			return lines
		}
		line := strings.TrimSuffix(string(b.partial[:i]), "\r")
		b.partial = b.partial[i+1:]
		lines = append(lines, line)
	}
}

// Pending returns the carried-over partial line, for diagnostics.
func (b *LineBuffer) Pending() string {
	return string(b.partial)
}

// ParseLine classifies a single complete output line. Lines that do not
// match any known form come back as EventUnknown; engines emit vendor
// extensions and commentary, so unknown lines must never be fatal.
func ParseLine(line string) Event {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{Kind: EventUnknown, Raw: line}
	}

	switch fields[0] {
	case "uciok":
		return Event{Kind: EventUCIOK, Raw: line}
	case "readyok":
		return Event{Kind: EventReadyOK, Raw: line}
	case "bestmove":
		if len(fields) < 2 {
			return Event{Kind: EventUnknown, Raw: line}
		}
		ev := Event{Kind: EventBestMove, BestMove: fields[1], Raw: line}
		if len(fields) >= 4 && fields[2] == "ponder" {
			ev.Ponder = fields[3]
		}
		return ev
	case "info":
		return parseInfo(fields[1:], line)
	default:
		return Event{Kind: EventUnknown, Raw: line}
	}
}

func parseInfo(fields []string, raw string) Event {
	var info Info

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				info.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "score":
			if i+2 < len(fields) {
				v, err := strconv.Atoi(fields[i+2])
				switch fields[i+1] {
				case "cp":
					if err == nil {
						info.ScoreCP = v
						info.HasScore = true
					}
				case "mate":
					if err == nil {
						info.Mate = v
						info.HasScore = true
					}
				}
				i += 2
			}
		case "lowerbound", "upperbound":
			// Bound markers follow a score; nothing to record.
		case "nodes":
			if i+1 < len(fields) {
				info.Nodes, _ = strconv.ParseUint(fields[i+1], 10, 64)
				i++
			}
		case "time":
			if i+1 < len(fields) {
				info.TimeMS, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "pv":
			// The principal variation runs to the end of the line.
			info.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		case "string":
			// Commentary, not an evaluation.
			return Event{Kind: EventUnknown, Raw: raw}
		case "seldepth", "multipv", "nps", "hashfull", "tbhits",
			"currmovenumber", "currmove", "cpuload":
			// Known single-argument fields we do not use.
			if i+1 < len(fields) {
				i++
			}
		default:
			// Unknown vendor field; skip the token and keep going.
		}
	}

	return Event{Kind: EventInfo, Info: info, Raw: raw}
}
