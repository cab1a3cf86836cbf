package insertsize

import (
	"github.com/grailbio/hts/sam"
)

// Orientation is the relative arrangement of the two mapped mates of a
// read pair.
type Orientation int

const (
	// FR pairs point toward each other: the forward-strand read lies
	// upstream of the reverse-strand read.
	FR Orientation = iota
	// Tandem pairs map to the same strand.
	Tandem
	// RF pairs point away from each other.
	RF

	numOrientations
)

// String returns the Picard-compatible name of the orientation.
func (o Orientation) String() string {
	switch o {
	case FR:
		return "FR"
	case Tandem:
		return "TANDEM"
	case RF:
		return "RF"
	}
	return "UNKNOWN"
}

func (o Orientation) histogramSuffix() string {
	switch o {
	case FR:
		return "fr_count"
	case Tandem:
		return "tandem_count"
	case RF:
		return "rf_count"
	}
	return "unknown_count"
}

// OrientationOf classifies the pair orientation of a record from a
// mapped pair. Mates on the same strand are tandem; otherwise the pair
// is FR when the forward-strand 5' position lies before the
// reverse-strand 5' position, and RF when it does not. The mate's
// alignment end is not available on r, so it is approximated by the mate
// start plus the read length, as Picard does.
//
// REQUIRES: r is paired and both r and its mate are mapped.
func OrientationOf(r *sam.Record) Orientation {
	reverse := r.Flags&sam.Reverse != 0
	if reverse == (r.Flags&sam.MateReverse != 0) {
		return Tandem
	}
	var forward5, reverse5 int
	if reverse {
		forward5 = r.MatePos
		reverse5 = r.End()
	} else {
		forward5 = r.Pos
		reverse5 = r.MatePos + r.Seq.Length
	}
	if forward5 < reverse5 {
		return FR
	}
	return RF
}
