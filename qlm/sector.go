package qlm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var windingLabels = [3]byte{'x', 'y', 'z'}

// Tag returns the sector's dataset name, e.g. "wx_2-wy_2-wz_2" or "wx_1-wy_1-bg_p0n3".
func (sec Sector) Tag() string {
	return string(sec.AppendTag(make([]byte, 0, 24)))
}

func (sec Sector) AppendTag(dst []byte) []byte {
	for a := 0; a < sec.Dim; a++ {
		if a > 0 {
			dst = append(dst, '-')
		}
		dst = append(dst, 'w', windingLabels[a], '_')
		dst = strconv.AppendInt(dst, int64(sec.Winding[a]), 10)
	}
	if sec.Background != "" {
		dst = append(dst, "-bg_"...)
		dst = append(dst, sec.Background...)
	}
	return dst
}

func (sec Sector) String() string {
	return sec.Tag()
}

// ParseSectorTag is the inverse of Sector.Tag.
func ParseSectorTag(tag string) (Sector, error) {
	var sec Sector
	if i := strings.Index(tag, "-bg_"); i >= 0 {
		sec.Background = tag[i+4:]
		tag = tag[:i]
		if sec.Background == "" {
			return sec, errors.Wrap(ErrBadSectorTag, "empty background label")
		}
	}

	parts := strings.Split(tag, "-")
	if len(parts) < 2 || len(parts) > 3 {
		return sec, errors.Wrapf(ErrBadSectorTag, "%q", tag)
	}
	for a, part := range parts {
		if len(part) < 4 || part[0] != 'w' || part[1] != windingLabels[a] || part[2] != '_' {
			return sec, errors.Wrapf(ErrBadSectorTag, "%q", part)
		}
		w, err := strconv.Atoi(part[3:])
		if err != nil || w < 0 {
			return sec, errors.Wrapf(ErrBadSectorTag, "%q", part)
		}
		sec.Winding[a] = w
	}
	sec.Dim = len(parts)
	return sec, nil
}

// CompareSectors orders sectors by dimension, then winding (x first), then background label.
func CompareSectors(A, B Sector) int {
	if d := A.Dim - B.Dim; d != 0 {
		return d
	}
	for a := 0; a < A.Dim; a++ {
		if d := A.Winding[a] - B.Winding[a]; d != 0 {
			return d
		}
	}
	return strings.Compare(A.Background, B.Background)
}

func (st Statistics) String() string {
	switch st {
	case Fermions:
		return "fermions"
	case Bosons:
		return "bosons"
	}
	return "Statistics(" + strconv.Itoa(int(st)) + ")"
}

func ParseStatistics(str string) (Statistics, error) {
	switch strings.ToLower(str) {
	case "fermions", "fermion", "f":
		return Fermions, nil
	case "bosons", "boson", "b":
		return Bosons, nil
	}
	return Fermions, errors.Errorf("unknown particle statistics %q", str)
}

// BackgroundLabel returns the label that identifies this charge background in sector tags.
// An empty background yields "".
func (sc *StaticCharges) BackgroundLabel() string {
	if sc == nil || sc.IsEmpty() {
		return ""
	}
	if sc.Label != "" {
		return sc.Label
	}
	buf := make([]byte, 0, 32)
	buf = appendVertexList(append(buf, 'p'), sc.Positive)
	buf = appendVertexList(append(buf, 'n'), sc.Negative)
	return string(buf)
}

func appendVertexList(dst []byte, vtx []int) []byte {
	for i, v := range vtx {
		if i > 0 {
			dst = append(dst, '.')
		}
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	return dst
}

func (sc *StaticCharges) IsEmpty() bool {
	return sc == nil || len(sc.Positive)+len(sc.Negative) == 0
}
