package catalog

import (
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

const (
	catalogMajorVers = 2026
	catalogMinorVers = 1
)

// catalogState is the catalog's header record, stored under gCatalogStateKey.
//
// Wire layout (proto varints and length-prefixed bytes):
//
//	MajorVers, MinorVers, SizeTag, NumSectors, { SectorTag, Count }...
type catalogState struct {
	MajorVers uint64
	MinorVers uint64
	SizeTag   string
	Sectors   []qlm.SectorCount // kept in sector order
}

func (st *catalogState) Marshal() ([]byte, error) {
	buf := proto.NewBuffer(make([]byte, 0, 64+24*len(st.Sectors)))
	buf.EncodeVarint(st.MajorVers)
	buf.EncodeVarint(st.MinorVers)
	buf.EncodeStringBytes(st.SizeTag)
	buf.EncodeVarint(uint64(len(st.Sectors)))
	for _, sc := range st.Sectors {
		buf.EncodeStringBytes(sc.Sector.Tag())
		buf.EncodeVarint(uint64(sc.Count))
	}
	return buf.Bytes(), nil
}

func (st *catalogState) Unmarshal(val []byte) error {
	buf := proto.NewBuffer(val)

	var err error
	if st.MajorVers, err = buf.DecodeVarint(); err != nil {
		return errors.Wrap(qlm.ErrCorruptRecord, "catalog version")
	}
	if st.MinorVers, err = buf.DecodeVarint(); err != nil {
		return errors.Wrap(qlm.ErrCorruptRecord, "catalog version")
	}
	if st.SizeTag, err = buf.DecodeStringBytes(); err != nil {
		return errors.Wrap(qlm.ErrCorruptRecord, "catalog size tag")
	}
	n, err := buf.DecodeVarint()
	if err != nil || n > uint64(len(val)) {
		return errors.Wrap(qlm.ErrCorruptRecord, "catalog sector count")
	}

	st.Sectors = make([]qlm.SectorCount, n)
	for i := range st.Sectors {
		tag, err := buf.DecodeStringBytes()
		if err != nil {
			return errors.Wrapf(qlm.ErrCorruptRecord, "sector %d", i)
		}
		if st.Sectors[i].Sector, err = qlm.ParseSectorTag(tag); err != nil {
			return err
		}
		count, err := buf.DecodeVarint()
		if err != nil {
			return errors.Wrapf(qlm.ErrCorruptRecord, "sector %d count", i)
		}
		st.Sectors[i].Count = int64(count)
	}
	return nil
}

// addCount returns a copy of sectors with n added to sec, keeping sector order.
func addCount(sectors []qlm.SectorCount, sec qlm.Sector, n int64) []qlm.SectorCount {
	out := make([]qlm.SectorCount, 0, len(sectors)+1)
	added := false
	for _, sc := range sectors {
		if !added {
			if d := qlm.CompareSectors(sc.Sector, sec); d == 0 {
				sc.Count += n
				added = true
			} else if d > 0 {
				out = append(out, qlm.SectorCount{Sector: sec, Count: n})
				added = true
			}
		}
		out = append(out, sc)
	}
	if !added {
		out = append(out, qlm.SectorCount{Sector: sec, Count: n})
	}
	return out
}
